package ot

import "sync"

const defaultMaxHistory = 1000

// userHistory holds one user's undo and redo stacks.
type userHistory struct {
	undo []Operation
	redo []Operation
}

// HistoryManager maintains per-user undo/redo stacks and keeps every stored
// operation consistent with the document as concurrent remote operations
// arrive, per spec.md §4.2. Grounded on
// original_source/src/common/ot/undo_redo_manager.cpp's UndoRedoManager,
// generalized from one global stack pair to one pair per user.
type HistoryManager struct {
	mu         sync.Mutex
	maxHistory int
	users      map[string]*userHistory
}

// NewHistoryManager creates a manager bounding each user's undo stack to
// maxHistory entries (spec.md default 1000; 0 uses the default).
func NewHistoryManager(maxHistory int) *HistoryManager {
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}

	return &HistoryManager{maxHistory: maxHistory, users: make(map[string]*userHistory)}
}

func (h *HistoryManager) historyFor(userID string) *userHistory {
	uh, ok := h.users[userID]
	if !ok {
		uh = &userHistory{}
		h.users[userID] = uh
	}

	return uh
}

// Record pushes a clone of op onto userID's undo stack. If clearRedo is
// true (the default for any ordinary local edit), userID's redo stack is
// cleared — spec.md: "The redo stack is cleared whenever a non-undo/
// non-redo local operation is recorded for that user."
func (h *HistoryManager) Record(userID string, op Operation, clearRedo bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	uh := h.historyFor(userID)

	if clearRedo {
		uh.redo = uh.redo[:0]
	}

	uh.undo = append(uh.undo, op.Clone())

	if len(uh.undo) > h.maxHistory {
		uh.undo = uh.undo[len(uh.undo)-h.maxHistory:]
	}
}

// Undo pops userID's undo stack and returns the inverse of the popped
// operation, tagged SourceLocalUndo with RelatedID set to the original's
// ID. The original is pushed onto the redo stack. Entries whose inverse is
// unavailable (a delete whose text was never captured) are dropped and the
// next entry is tried, per spec.md §4.2/§7.
func (h *HistoryManager) Undo(userID string) (Operation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	uh := h.historyFor(userID)

	for len(uh.undo) > 0 {
		op := uh.undo[len(uh.undo)-1]
		uh.undo = uh.undo[:len(uh.undo)-1]

		inv, err := op.Invert()
		if err != nil {
			// InversionUnavailable: skip this entry silently and try the
			// next one.
			continue
		}

		inv.Source = SourceLocalUndo
		inv.RelatedID = op.ID
		uh.redo = append(uh.redo, op)

		return inv, true
	}

	return Operation{}, false
}

// Redo pops userID's redo stack and returns a clone tagged SourceLocalRedo
// with RelatedID set to the original's ID. The original is pushed back
// onto the undo stack.
func (h *HistoryManager) Redo(userID string) (Operation, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	uh := h.historyFor(userID)

	if len(uh.redo) == 0 {
		return Operation{}, false
	}

	op := uh.redo[len(uh.redo)-1]
	uh.redo = uh.redo[:len(uh.redo)-1]

	redoOp := op.Clone()
	redoOp.Source = SourceLocalRedo
	redoOp.RelatedID = op.ID

	uh.undo = append(uh.undo, op)

	return redoOp, true
}

// TransformAll transforms every stored operation, for every user, against a
// just-committed remote operation, so undo/redo entries keep applying
// cleanly against the new document state (spec.md invariant I2). Entries
// that transform to a no-op are dropped, so undo never produces a no-op.
func (h *HistoryManager) TransformAll(remote Operation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, uh := range h.users {
		uh.undo = transformStack(uh.undo, remote)
		uh.redo = transformStack(uh.redo, remote)
	}
}

func transformStack(stack []Operation, remote Operation) []Operation {
	kept := stack[:0]

	for _, op := range stack {
		t := op.Transform(remote)
		if t.IsNoop() {
			continue
		}

		kept = append(kept, t)
	}

	return kept
}

// UndoCount and RedoCount report stack depth for userID; used by tests and
// diagnostics.
func (h *HistoryManager) UndoCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.historyFor(userID).undo)
}

func (h *HistoryManager) RedoCount(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.historyFor(userID).redo)
}

// Clear discards all history for every user; used when a document's
// content is replaced wholesale (e.g. loaded from a snapshot).
func (h *HistoryManager) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.users = make(map[string]*userHistory)
}
