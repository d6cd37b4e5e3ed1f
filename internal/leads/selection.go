package leads

// ToggleSelection selects or deselects a lead and reports whether it is now selected.
func (vm *ViewModel) ToggleSelection(id string) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if _, ok := vm.selected[id]; ok {
		delete(vm.selected, id)
		return false
	}
	if vm.indexLocked(id) < 0 {
		return false
	}
	vm.selected[id] = struct{}{}
	return true
}

// SelectAll selects every lead of the derived view. When the whole view is
// already selected it clears the selection instead.
func (vm *ViewModel) SelectAll() []string {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	all := len(vm.view) > 0
	for _, l := range vm.view {
		if _, ok := vm.selected[l.ID]; !ok {
			all = false
			break
		}
	}

	if all {
		vm.selected = make(map[string]struct{})
		return []string{}
	}

	for _, l := range vm.view {
		vm.selected[l.ID] = struct{}{}
	}
	return vm.selectedLocked()
}

// ClearSelection deselects everything.
func (vm *ViewModel) ClearSelection() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.selected = make(map[string]struct{})
}

// Selected returns the selected lead ids in view order, followed by selected
// leads currently hidden by filters in canonical order.
func (vm *ViewModel) Selected() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.selectedLocked()
}

func (vm *ViewModel) selectedLocked() []string {
	out := make([]string, 0, len(vm.selected))
	seen := make(map[string]struct{}, len(vm.selected))
	for _, list := range [][]Lead{vm.view, vm.leads} {
		for _, l := range list {
			if _, ok := vm.selected[l.ID]; !ok {
				continue
			}
			if _, dup := seen[l.ID]; dup {
				continue
			}
			seen[l.ID] = struct{}{}
			out = append(out, l.ID)
		}
	}
	return out
}

// pruneSelectionLocked drops selected ids that are no longer in the collection.
func (vm *ViewModel) pruneSelectionLocked() {
	for id := range vm.selected {
		if vm.indexLocked(id) < 0 {
			delete(vm.selected, id)
		}
	}
}
