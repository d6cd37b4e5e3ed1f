package leads

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// bulkConcurrency bounds the in-flight backend calls of one bulk operation.
const bulkConcurrency = 8

// BulkError reports the items of a bulk operation that failed. The other items succeeded.
type BulkError struct {
	Op     string
	Failed map[string]error
}

func (e *BulkError) Error() string {
	ids := e.IDs()
	return fmt.Sprintf("%s failed for %d lead(s): %s", e.Op, len(ids), strings.Join(ids, ", "))
}

// IDs returns the failed lead ids sorted.
func (e *BulkError) IDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Bulk operation names carried by BulkError.Op.
const (
	OpUpdateStatus = "update status"
	OpDelete       = "delete"
	OpTag          = "tag"
)

// UserMessage summarises the failure for display.
func (e *BulkError) UserMessage() string {
	verb := "processed"
	switch e.Op {
	case OpUpdateStatus:
		verb = "updated"
	case OpDelete:
		verb = "deleted"
	case OpTag:
		verb = "tagged"
	}
	return fmt.Sprintf("%d of the selected leads could not be %s", len(e.Failed), verb)
}

// fanOut runs fn for every id with bounded concurrency and returns the ids that
// succeeded plus the per-id failures. One failure never cancels the others.
func fanOut(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) ([]string, map[string]error) {
	var (
		mu     sync.Mutex
		ok     = make([]string, 0, len(ids))
		failed = make(map[string]error)
	)

	var g errgroup.Group
	g.SetLimit(bulkConcurrency)
	for _, id := range dedupe(ids) {
		g.Go(func() error {
			err := fn(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[id] = err
			} else {
				ok = append(ok, id)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ok, failed
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BulkUpdateStatus sets the contact status of every id. Successful updates are
// applied locally; failures are returned as a *BulkError.
func (vm *ViewModel) BulkUpdateStatus(ctx context.Context, ids []string, status ContactStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	ok, failed := fanOut(ctx, ids, func(ctx context.Context, id string) error {
		_, err := vm.backend.UpdateLead(ctx, id, LeadPatch{ContactStatus: &status})
		return err
	})

	vm.mu.Lock()
	defer vm.mu.Unlock()

	for _, id := range ok {
		if idx := vm.indexLocked(id); idx >= 0 {
			vm.leads[idx].ContactStatus = status
		}
	}
	vm.recomputeLocked()

	return vm.bulkResultLocked(ctx, OpUpdateStatus, failed)
}

// BulkDelete deletes every id after a single confirmation.
func (vm *ViewModel) BulkDelete(ctx context.Context, ids []string, confirm ConfirmFunc) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	if confirm == nil || !confirm(fmt.Sprintf("Are you sure you want to delete %d leads?", len(ids))) {
		return ErrNotConfirmed
	}

	ok, failed := fanOut(ctx, ids, vm.backend.DeleteLead)

	vm.mu.Lock()
	defer vm.mu.Unlock()

	for _, id := range ok {
		vm.removeLocked(id)
	}
	vm.recomputeLocked()

	return vm.bulkResultLocked(ctx, OpDelete, failed)
}

func (vm *ViewModel) bulkResultLocked(ctx context.Context, op string, failed map[string]error) error {
	if len(failed) == 0 {
		return nil
	}

	bulkErr := &BulkError{Op: op, Failed: failed}
	vm.lastErr = bulkErr.UserMessage()
	vm.logger.WithContext(ctx).Warn("bulk operation partially failed",
		slog.String("op", op),
		slog.Int("failed", len(failed)))
	return bulkErr
}
