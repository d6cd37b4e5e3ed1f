package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	apperrors "github.com/eternisai/leadgen-assistant/internal/errors"
	"github.com/eternisai/leadgen-assistant/internal/logger"
)

var (
	ErrLeadNotFound  = errors.New("lead not found")
	ErrInvalidStatus = errors.New("invalid contact status")
	ErrNotConfirmed  = errors.New("deletion was not confirmed")
)

// Fallback messages shown when the backend error carries none.
const (
	msgLoadFailed   = "Failed to load leads"
	msgUpdateFailed = "Failed to update lead"
	msgDeleteFailed = "Failed to delete lead"
	msgTagsFailed   = "Failed to load tags"
	msgTagFailed    = "Failed to update lead tags"
)

// Backend is the part of the lead backend the view-model needs.
type Backend interface {
	ListLeads(ctx context.Context) ([]Lead, error)
	UpdateLead(ctx context.Context, id string, patch LeadPatch) (*Lead, error)
	DeleteLead(ctx context.Context, id string) error
	ListTags(ctx context.Context) ([]Tag, error)
	TagLead(ctx context.Context, leadID, tagID string) error
	UntagLead(ctx context.Context, leadID, tagID string) error
}

// ConfirmFunc asks the user to confirm a destructive action.
type ConfirmFunc func(prompt string) bool

// Confirmed is a ConfirmFunc for callers that already obtained consent.
func Confirmed(string) bool { return true }

// ViewModel holds the canonical lead collection of one account and derives the
// filtered, sorted view the UI renders. All methods are safe for concurrent use.
type ViewModel struct {
	backend Backend
	logger  *logger.Logger

	mu       sync.RWMutex
	leads    []Lead // canonical, contactable only
	view     []Lead // derived
	tags     []Tag
	filters  Filters
	sort     Sort
	selected map[string]struct{}

	fetched  int
	loading  bool
	loadSeq  uint64
	lastErr  string
	loadedAt time.Time

	onLoad func(count int)
}

// Option configures a ViewModel.
type Option func(*ViewModel)

// WithSort sets the initial sort order.
func WithSort(s Sort) Option {
	return func(vm *ViewModel) { vm.sort = s }
}

// WithLoadObserver registers fn to receive the contactable lead count after every successful load.
func WithLoadObserver(fn func(count int)) Option {
	return func(vm *ViewModel) { vm.onLoad = fn }
}

// NewViewModel creates an empty view-model with default filters.
func NewViewModel(backend Backend, log *logger.Logger, opts ...Option) *ViewModel {
	vm := &ViewModel{
		backend:  backend,
		logger:   log.WithComponent("leads"),
		leads:    []Lead{},
		view:     []Lead{},
		tags:     []Tag{},
		filters:  DefaultFilters(),
		sort:     DefaultSort(),
		selected: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Load fetches every lead, keeps the contactable ones and recomputes the view.
// On failure the previous collection is kept and LastError is set.
func (vm *ViewModel) Load(ctx context.Context) error {
	vm.mu.Lock()
	vm.loadSeq++
	seq := vm.loadSeq
	vm.loading = true
	vm.lastErr = ""
	vm.mu.Unlock()

	fetched, err := vm.backend.ListLeads(ctx)

	vm.mu.Lock()
	defer vm.mu.Unlock()

	// A newer load owns the state.
	if seq != vm.loadSeq {
		return err
	}
	vm.loading = false

	if err != nil {
		vm.lastErr = apperrors.MessageOf(err, msgLoadFailed)
		vm.logger.WithContext(ctx).Error("failed to load leads", slog.String("error", err.Error()))
		return fmt.Errorf("load leads: %w", err)
	}

	vm.fetched = len(fetched)
	vm.leads = Contactable(fetched)
	vm.loadedAt = time.Now()
	vm.pruneSelectionLocked()
	vm.recomputeLocked()

	vm.logger.WithContext(ctx).Info("leads loaded",
		slog.Int("fetched", vm.fetched),
		slog.Int("contactable", len(vm.leads)))

	if vm.onLoad != nil {
		vm.onLoad(len(vm.leads))
	}
	return nil
}

// UpdateStatus rewrites a lead's contact status locally, then persists it.
// A backend failure restores the previous status.
func (vm *ViewModel) UpdateStatus(ctx context.Context, id string, status ContactStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	vm.mu.Lock()
	idx := vm.indexLocked(id)
	if idx < 0 {
		vm.mu.Unlock()
		return ErrLeadNotFound
	}
	previous := vm.leads[idx].ContactStatus
	vm.leads[idx].ContactStatus = status
	vm.lastErr = ""
	vm.recomputeLocked()
	vm.mu.Unlock()

	updated, err := vm.backend.UpdateLead(ctx, id, LeadPatch{ContactStatus: &status})

	vm.mu.Lock()
	defer vm.mu.Unlock()

	idx = vm.indexLocked(id)
	if err != nil {
		// Only undo our own write; a later update wins.
		if idx >= 0 && vm.leads[idx].ContactStatus == status {
			vm.leads[idx].ContactStatus = previous
			vm.recomputeLocked()
		}
		vm.lastErr = apperrors.MessageOf(err, msgUpdateFailed)
		vm.logger.WithContext(ctx).Warn("lead status update rolled back",
			slog.String("lead_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
		return fmt.Errorf("update lead %s: %w", id, err)
	}

	if idx >= 0 && updated != nil && updated.ID == id && !updated.UpdatedAt.IsZero() {
		vm.leads[idx].UpdatedAt = updated.UpdatedAt
		vm.recomputeLocked()
	}
	return nil
}

// Delete removes a lead after the user confirms. The backend is called first;
// local state changes only on success.
func (vm *ViewModel) Delete(ctx context.Context, id string, confirm ConfirmFunc) error {
	if confirm == nil || !confirm("Are you sure you want to delete this lead?") {
		return ErrNotConfirmed
	}

	if err := vm.backend.DeleteLead(ctx, id); err != nil {
		vm.setError(err, msgDeleteFailed)
		return fmt.Errorf("delete lead %s: %w", id, err)
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.removeLocked(id)
	vm.recomputeLocked()
	return nil
}

// SetFilters merges p into the current filters and recomputes the view.
func (vm *ViewModel) SetFilters(p FilterPatch) Filters {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.filters = vm.filters.Merge(p)
	vm.recomputeLocked()
	return vm.filters
}

// ClearFilters restores the default filters.
func (vm *ViewModel) ClearFilters() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.filters = DefaultFilters()
	vm.recomputeLocked()
}

// SetSort sorts by field; picking the current field again flips the direction.
func (vm *ViewModel) SetSort(field SortField) Sort {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.sort = vm.sort.Toggle(field)
	vm.recomputeLocked()
	return vm.sort
}

// View returns a copy of the derived list.
func (vm *ViewModel) View() []Lead {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return cloneLeads(vm.view)
}

// Leads returns a copy of the canonical contactable collection.
func (vm *ViewModel) Leads() []Lead {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return cloneLeads(vm.leads)
}

// Lead returns a single canonical lead.
func (vm *ViewModel) Lead(id string) (Lead, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if idx := vm.indexLocked(id); idx >= 0 {
		return vm.leads[idx].clone(), true
	}
	return Lead{}, false
}

// Filters returns the current filters.
func (vm *ViewModel) Filters() Filters {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	f := vm.filters
	f.Tags = append([]string{}, vm.filters.Tags...)
	return f
}

// Sort returns the current sort.
func (vm *ViewModel) Sort() Sort {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sort
}

// Total is the number of leads the backend returned, before the contactable filter.
func (vm *ViewModel) Total() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.fetched
}

// Count is the number of leads in the derived view.
func (vm *ViewModel) Count() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return len(vm.view)
}

// LastError is the user-facing message of the last failed operation.
func (vm *ViewModel) LastError() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.lastErr
}

// Industries lists the distinct non-empty industries of the canonical collection.
func (vm *ViewModel) Industries() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	seen := make(map[string]struct{})
	out := []string{}
	for _, l := range vm.leads {
		if l.Industry == "" {
			continue
		}
		if _, ok := seen[l.Industry]; ok {
			continue
		}
		seen[l.Industry] = struct{}{}
		out = append(out, l.Industry)
	}
	sort.Strings(out)
	return out
}

// PageResult is one page of the derived view.
type PageResult struct {
	Leads []Lead `json:"leads"`
	Page  int    `json:"page"`
	Size  int    `json:"size"`
	Total int    `json:"total"`
	Pages int    `json:"pages"`
}

// Page slices the derived view. page is 1-based and clamped to the valid range.
func (vm *ViewModel) Page(page, size int) PageResult {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	if size <= 0 {
		size = 25
	}
	total := len(vm.view)
	pages := (total + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	start := (page - 1) * size
	end := min(start+size, total)

	return PageResult{
		Leads: cloneLeads(vm.view[start:end]),
		Page:  page,
		Size:  size,
		Total: total,
		Pages: pages,
	}
}

// State is a consistent copy of the whole view-model.
type State struct {
	Leads       []Lead    `json:"leads"`
	Filters     Filters   `json:"filters"`
	Sort        Sort      `json:"sort"`
	Tags        []Tag     `json:"tags"`
	Selected    []string  `json:"selected"`
	Total       int       `json:"total"`
	Contactable int       `json:"contactable"`
	Count       int       `json:"count"`
	Loading     bool      `json:"loading"`
	Error       string    `json:"error,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// Snapshot returns the current state.
func (vm *ViewModel) Snapshot() State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()

	f := vm.filters
	f.Tags = append([]string{}, vm.filters.Tags...)
	return State{
		Leads:       cloneLeads(vm.view),
		Filters:     f,
		Sort:        vm.sort,
		Tags:        append([]Tag{}, vm.tags...),
		Selected:    vm.selectedLocked(),
		Total:       vm.fetched,
		Contactable: len(vm.leads),
		Count:       len(vm.view),
		Loading:     vm.loading,
		Error:       vm.lastErr,
		LoadedAt:    vm.loadedAt,
	}
}

func (vm *ViewModel) recomputeLocked() {
	vm.view = SortLeads(ApplyFilters(vm.leads, vm.filters), vm.sort)
}

func (vm *ViewModel) indexLocked(id string) int {
	for i := range vm.leads {
		if vm.leads[i].ID == id {
			return i
		}
	}
	return -1
}

func (vm *ViewModel) removeLocked(id string) {
	if idx := vm.indexLocked(id); idx >= 0 {
		vm.leads = append(vm.leads[:idx:idx], vm.leads[idx+1:]...)
	}
	delete(vm.selected, id)
}

func cloneLeads(in []Lead) []Lead {
	out := make([]Lead, len(in))
	for i := range in {
		out[i] = in[i].clone()
	}
	return out
}
