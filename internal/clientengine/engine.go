// Package clientengine implements the client side of the operational
// transformation protocol: a local text buffer, a pending-operations
// buffer for edits sent but not yet acknowledged, and the symmetric
// transform step that reconciles a remote operation against everything
// still in flight. No teacher analogue exists for this half of the
// protocol (the pack only carries the server side); built directly from
// spec.md §4.6's algorithm description, in the server controller's
// naming and locking idiom (internal/ot/controller.go).
package clientengine

import (
	"errors"
	"sync"

	"github.com/arashov/collabedit/internal/ot"
)

// ErrUnknownOperation is returned by Ack/Reject when the given operation id
// isn't (or is no longer) in the pending buffer.
var ErrUnknownOperation = errors.New("clientengine: operation id not pending")

// pendingEntry is one locally-applied, sent-but-unacknowledged operation.
type pendingEntry struct {
	id           int64
	baseRevision int64
	op           ot.Operation
}

// Engine holds one document's client-side state: the text as last seen
// (after folding every acknowledged and transformed remote operation) and
// the ordered buffer of local edits still awaiting the server's ACK.
type Engine struct {
	mu sync.Mutex

	authorID string
	text     []rune
	revision int64
	nextOpID int64
	pending  []pendingEntry
}

// New creates an engine for a fresh, empty document. authorID tags every
// locally-originated operation.
func New(authorID string) *Engine {
	return &Engine{authorID: authorID}
}

// Text returns the engine's current local text.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return string(e.text)
}

// Revision returns the last server revision this engine has folded in.
func (e *Engine) Revision() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.revision
}

// PendingCount reports how many local operations are still unacknowledged.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.pending)
}

// ApplyLocal applies op to the local text, appends it to the pending
// buffer tagged with a fresh operation id and the current revision as its
// base, and returns the tagged operation and base revision a caller should
// send to the server. Per spec.md §4.6 step 1: apply, then buffer, then
// send.
func (e *Engine) ApplyLocal(op ot.Operation) (tagged ot.Operation, baseRevision int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	applied := op
	applied.AuthorID = e.authorID

	text, err := applied.Apply(e.text)
	if err != nil {
		return ot.Operation{}, 0, err
	}

	e.nextOpID++
	applied.ID = e.nextOpID

	e.text = text
	baseRevision = e.revision

	e.pending = append(e.pending, pendingEntry{
		id:           applied.ID,
		baseRevision: baseRevision,
		op:           applied,
	})

	return applied, baseRevision, nil
}

// ApplyRemote folds a committed remote operation into local state, per
// spec.md §4.6's receive-remote algorithm: every still-pending local
// operation is transformed against r (and r against it, in turn), so the
// fully-transformed r can be applied on top of local edits the server
// hasn't seen yet, while each pending entry is updated to still apply
// cleanly once it is eventually re-sent or reconciled by its own ACK.
func (e *Engine) ApplyRemote(r ot.Operation, serverRevision int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, p := range e.pending {
		transformedPending := p.op.Transform(r)
		r = r.Transform(p.op)
		p.op = transformedPending
		e.pending[i] = p
	}

	text, err := r.Apply(e.text)
	if err != nil {
		return err
	}

	e.text = text
	e.revision = serverRevision

	return nil
}

// Ack removes the pending entry for opID (the server's commit of a local
// operation) and adopts serverRevision as the local revision, per
// spec.md §4.6's ACK rule.
func (e *Engine) Ack(opID int64, serverRevision int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOfPending(opID)
	if idx < 0 {
		return ErrUnknownOperation
	}

	e.pending = append(e.pending[:idx], e.pending[idx+1:]...)
	e.revision = serverRevision

	return nil
}

// Reject discards every pending entry up to and including opID, per
// spec.md §4.6's NACK rule: the caller must still issue a SyncRequest
// (ApplySnapshot or ApplyLogSuffix, once the response arrives) since the
// discarded local edits never committed and local text may now diverge
// from the server's.
func (e *Engine) Reject(opID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexOfPending(opID)
	if idx < 0 {
		return ErrUnknownOperation
	}

	e.pending = append([]pendingEntry(nil), e.pending[idx+1:]...)

	return nil
}

func (e *Engine) indexOfPending(opID int64) int {
	for i, p := range e.pending {
		if p.id == opID {
			return i
		}
	}

	return -1
}

// ApplyLogSuffix folds a SyncResponse's log suffix onto local state,
// transforming each entry against the pending buffer exactly as
// ApplyRemote does, in commit order.
func (e *Engine) ApplyLogSuffix(entries []ot.Entry) error {
	for _, entry := range entries {
		if err := e.ApplyRemote(entry.Operation, entry.Revision); err != nil {
			return err
		}
	}

	return nil
}

// ApplySnapshot replaces local state wholesale from a SyncState reply (the
// server's compacted-log fallback). Any still-pending local edits are
// discarded: they were based on a revision the server can no longer
// express as a log suffix, so they cannot be safely replayed.
func (e *Engine) ApplySnapshot(content string, revision int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.text = []rune(content)
	e.revision = revision
	e.pending = nil
}
