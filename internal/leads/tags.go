package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
)

var ErrTagNotFound = errors.New("tag not found")

// LoadTags fetches the account's tags.
func (vm *ViewModel) LoadTags(ctx context.Context) error {
	tags, err := vm.backend.ListTags(ctx)
	if err != nil {
		vm.mu.Lock()
		vm.lastErr = apperrors.MessageOf(err, msgTagsFailed)
		vm.mu.Unlock()
		return fmt.Errorf("load tags: %w", err)
	}
	if tags == nil {
		tags = []Tag{}
	}

	vm.mu.Lock()
	vm.tags = tags
	vm.mu.Unlock()

	vm.logger.WithContext(ctx).Debug("tags loaded", slog.Int("count", len(tags)))
	return nil
}

// Tags returns the loaded tags.
func (vm *ViewModel) Tags() []Tag {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return append([]Tag{}, vm.tags...)
}

// TagLead attaches a known tag to a lead.
func (vm *ViewModel) TagLead(ctx context.Context, leadID, tagID string) error {
	tag, err := vm.tagByID(tagID)
	if err != nil {
		return err
	}

	if err := vm.backend.TagLead(ctx, leadID, tagID); err != nil {
		vm.setError(err, msgTagFailed)
		return fmt.Errorf("tag lead %s: %w", leadID, err)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.attachLocked(leadID, tag)
	vm.recomputeLocked()
	return nil
}

// UntagLead detaches a tag from a lead.
func (vm *ViewModel) UntagLead(ctx context.Context, leadID, tagID string) error {
	if err := vm.backend.UntagLead(ctx, leadID, tagID); err != nil {
		vm.setError(err, msgTagFailed)
		return fmt.Errorf("untag lead %s: %w", leadID, err)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	if idx := vm.indexLocked(leadID); idx >= 0 {
		tags := vm.leads[idx].Tags[:0:0]
		for _, t := range vm.leads[idx].Tags {
			if t.ID != tagID {
				tags = append(tags, t)
			}
		}
		vm.leads[idx].Tags = tags
	}
	vm.recomputeLocked()
	return nil
}

// BulkTag attaches a tag to every id, best effort.
func (vm *ViewModel) BulkTag(ctx context.Context, ids []string, tagID string) error {
	tag, err := vm.tagByID(tagID)
	if err != nil {
		return err
	}

	ok, failed := fanOut(ctx, ids, func(ctx context.Context, id string) error {
		return vm.backend.TagLead(ctx, id, tagID)
	})

	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, id := range ok {
		vm.attachLocked(id, tag)
	}
	vm.recomputeLocked()

	return vm.bulkResultLocked(ctx, OpTag, failed)
}

func (vm *ViewModel) tagByID(tagID string) (Tag, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, t := range vm.tags {
		if t.ID == tagID {
			return t, nil
		}
	}
	return Tag{}, fmt.Errorf("%w: %s", ErrTagNotFound, tagID)
}

func (vm *ViewModel) attachLocked(leadID string, tag Tag) {
	idx := vm.indexLocked(leadID)
	if idx < 0 || vm.leads[idx].HasTag(tag.ID) {
		return
	}
	vm.leads[idx].Tags = append(append([]Tag{}, vm.leads[idx].Tags...), tag)
}

func (vm *ViewModel) setError(err error, fallback string) {
	vm.mu.Lock()
	vm.lastErr = apperrors.MessageOf(err, fallback)
	vm.mu.Unlock()
}
