package funcdeck

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Workspace errors.
var (
	ErrFunctionNotFound = errors.New("function not found")
	ErrNotDraft         = errors.New("function is not a local draft")
)

// RegistryService is the remote collaborator drafts are persisted to.
// It is satisfied by client.Registry; tests inject fakes.
type RegistryService interface {
	CreateFunction(ctx context.Context, fn FunctionDefinition) (FunctionDefinition, error)
}

// Workspace is the single-writer container for the session's function list
// and selection. It owns the local draft id space: drafts get negative,
// session-unique ids, fully disjoint from the registry's positive ids, and
// are reconciled against server entries when saved.
type Workspace struct {
	registry RegistryService

	mu        sync.Mutex
	funcs     []FunctionDefinition
	selected  FunctionID
	nextDraft FunctionID
}

// NewWorkspace creates an empty workspace backed by the given registry.
func NewWorkspace(registry RegistryService) *Workspace {
	return &Workspace{
		registry:  registry,
		nextDraft: -1,
	}
}

// Load replaces the function list with entries fetched from the registry,
// keeping any local drafts at the end of the list. Selection is preserved
// when it still resolves, otherwise cleared.
func (w *Workspace) Load(fns []FunctionDefinition) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var drafts []FunctionDefinition
	for _, fn := range w.funcs {
		if fn.IsDraft() {
			drafts = append(drafts, fn)
		}
	}

	w.funcs = make([]FunctionDefinition, 0, len(fns)+len(drafts))
	w.funcs = append(w.funcs, fns...)
	w.funcs = append(w.funcs, drafts...)

	if _, ok := w.indexLocked(w.selected); !ok {
		w.selected = 0
	}
}

// Functions returns a copy of the function list in display order.
func (w *Workspace) Functions() []FunctionDefinition {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]FunctionDefinition, len(w.funcs))
	copy(out, w.funcs)
	return out
}

// Get returns the function with the given id.
func (w *Workspace) Get(id FunctionID) (FunctionDefinition, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.indexLocked(id)
	if !ok {
		return FunctionDefinition{}, false
	}
	return w.funcs[i], true
}

// Select sets the current selection. Selecting id zero clears it; any other
// id must resolve to an existing entry.
func (w *Workspace) Select(id FunctionID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == 0 {
		w.selected = 0
		return nil
	}
	if _, ok := w.indexLocked(id); !ok {
		return fmt.Errorf("select function %s: %w", id, ErrFunctionNotFound)
	}
	w.selected = id
	return nil
}

// Selected returns the currently selected function, if any.
func (w *Workspace) Selected() (FunctionDefinition, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.indexLocked(w.selected)
	if !ok {
		return FunctionDefinition{}, false
	}
	return w.funcs[i], true
}

// NewDraft appends a fresh draft with a session-unique negative id and the
// runtime's starter source, selects it, and returns it. No network call is
// made.
func (w *Workspace) NewDraft(name string, runtime RuntimeTag) (FunctionDefinition, error) {
	if !runtime.Valid() {
		return FunctionDefinition{}, fmt.Errorf("new draft: unknown runtime %q", runtime)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return FunctionDefinition{}, errors.New("new draft: name is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	draft := FunctionDefinition{
		ID:         w.nextDraft,
		Name:       name,
		Runtime:    runtime,
		SourceCode: runtime.Template(),
	}
	w.nextDraft--
	w.funcs = append(w.funcs, draft)
	w.selected = draft.ID
	return draft, nil
}

// SetDraftSource replaces a draft's source code. Only drafts are editable
// locally; persisted functions change through the registry.
func (w *Workspace) SetDraftSource(id FunctionID, source string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.indexLocked(id)
	if !ok {
		return fmt.Errorf("edit function %s: %w", id, ErrFunctionNotFound)
	}
	if !w.funcs[i].IsDraft() {
		return fmt.Errorf("edit function %s: %w", id, ErrNotDraft)
	}
	w.funcs[i].SourceCode = source
	return nil
}

// SetDraftRuntime re-languages a draft. The source is reset to the new
// runtime's template, discarding prior edits. No network call is made.
func (w *Workspace) SetDraftRuntime(id FunctionID, runtime RuntimeTag) error {
	if !runtime.Valid() {
		return fmt.Errorf("re-language function %s: unknown runtime %q", id, runtime)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.indexLocked(id)
	if !ok {
		return fmt.Errorf("re-language function %s: %w", id, ErrFunctionNotFound)
	}
	if !w.funcs[i].IsDraft() {
		return fmt.Errorf("re-language function %s: %w", id, ErrNotDraft)
	}
	if w.funcs[i].Runtime == runtime {
		return nil
	}
	w.funcs[i].Runtime = runtime
	w.funcs[i].SourceCode = runtime.Template()
	return nil
}

// SaveDraft persists a draft through the registry's create operation. On
// success the draft entry is replaced in place by the server-returned entry
// (same display position, new id) and the selection follows the new id when
// the draft was selected. On failure the draft and selection are untouched.
func (w *Workspace) SaveDraft(ctx context.Context, id FunctionID) (FunctionDefinition, error) {
	if w.registry == nil {
		return FunctionDefinition{}, errors.New("save draft: no registry configured")
	}

	w.mu.Lock()
	i, ok := w.indexLocked(id)
	if !ok {
		w.mu.Unlock()
		return FunctionDefinition{}, fmt.Errorf("save function %s: %w", id, ErrFunctionNotFound)
	}
	if !w.funcs[i].IsDraft() {
		w.mu.Unlock()
		return FunctionDefinition{}, fmt.Errorf("save function %s: %w", id, ErrNotDraft)
	}
	draft := w.funcs[i]
	w.mu.Unlock()

	created, err := w.registry.CreateFunction(ctx, draft)
	if err != nil {
		return FunctionDefinition{}, fmt.Errorf("save function %q: %w", draft.Name, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Re-resolve: the list may have shifted while the create was in flight.
	j, ok := w.indexLocked(id)
	if !ok {
		// The draft was discarded mid-save; surface the created entry anyway.
		w.funcs = append(w.funcs, created)
	} else {
		w.funcs[j] = created
	}
	if w.selected == id {
		w.selected = created.ID
	}
	return created, nil
}

// Remove deletes a function from the workspace list. A selection pointing
// at the removed entry is cleared.
func (w *Workspace) Remove(id FunctionID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.indexLocked(id)
	if !ok {
		return fmt.Errorf("remove function %s: %w", id, ErrFunctionNotFound)
	}
	w.funcs = append(w.funcs[:i], w.funcs[i+1:]...)
	if w.selected == id {
		w.selected = 0
	}
	return nil
}

func (w *Workspace) indexLocked(id FunctionID) (int, bool) {
	if id == 0 {
		return 0, false
	}
	for i, fn := range w.funcs {
		if fn.ID == id {
			return i, true
		}
	}
	return 0, false
}
