package ot

import (
	"sync"
)

// Entry is one committed operation in a Controller's log, recorded at the
// revision that resulted from applying it.
type Entry struct {
	Revision  int64
	Operation Operation
}

// Controller owns one document's text, revision counter, operation log,
// and per-user undo/redo history, and is the single point through which
// every edit to that document passes. Grounded on teacher
// internal/ot/document.go (rune buffer, Apply) fused with
// internal/ot/queue.go (revision counter, transform-against-retained-suffix
// fold) and original_source/.../document_manager.cpp's split between
// applyLocalOperation and applyRemoteOperation.
type Controller struct {
	mu sync.RWMutex

	text     []rune
	revision int64
	nextID   int64
	log      []Entry
	history  *HistoryManager

	subscribers []func(Entry)

	compactBelow int // compact log entries older than revision-compactBelow; 0 disables
}

// NewController creates a controller for a fresh (empty-text) document.
func NewController(maxHistory int) *Controller {
	return &Controller{
		history:      NewHistoryManager(maxHistory),
		compactBelow: 0,
	}
}

// Subscribe registers sink to be invoked, synchronously and in commit
// order, every time an operation is committed. Intended for a dispatcher
// to fan a commit out to WebSocket subscribers.
func (c *Controller) Subscribe(sink func(Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subscribers = append(c.subscribers, sink)
}

func (c *Controller) notify(e Entry) {
	for _, sink := range c.subscribers {
		sink(e)
	}
}

func (c *Controller) allocateID() int64 {
	c.nextID++
	return c.nextID
}

// Snapshot returns the current text and revision.
func (c *Controller) Snapshot() (string, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return string(c.text), c.revision
}

// ApplyLocal applies an operation authored directly against the
// controller's current revision (i.e. the caller has already resolved any
// concurrent edits, or there were none). The operation is recorded to the
// author's undo stack unless it is itself an undo/redo replay, matching
// original_source's applyLocalOperation ("added to history only if source
// == LOCAL").
func (c *Controller) ApplyLocal(op Operation) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.commitLocked(op, true)
}

// ApplyRemote applies an operation that was submitted against an earlier
// revision (baseRevision) than the controller's current one — the path
// every dispatcher-submitted edit takes, whether or not anything else
// actually committed in the meantime, since the dispatcher is the only
// place that can tell. It is first transformed forward across every
// operation committed since baseRevision, oldest to newest, then
// committed. Every undo/redo entry already stored, for every user, is then
// transformed against the committed operation so they remain valid
// against the new text. The transformed operation is still the submitting
// author's own edit, so — mirroring original_source's applyLocalOperation,
// which is the call that invokes addOperation — it is recorded onto that
// author's undo stack after that step (and so is never transformed against
// itself), unless it is itself an undo/redo replay.
func (c *Controller) ApplyRemote(op Operation, baseRevision int64) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.log) > 0 && baseRevision < c.log[0].Revision-1 {
		return Entry{}, ErrBaseRevisionCompacted
	}

	transformed := op
	for _, entry := range c.log {
		if entry.Revision <= baseRevision {
			continue
		}

		transformed = transformed.Transform(entry.Operation)
	}

	entry, err := c.commitLocked(transformed, false)
	if err != nil {
		return Entry{}, err
	}

	c.history.TransformAll(entry.Operation)

	if entry.Operation.Source == SourceLocal {
		c.history.Record(entry.Operation.AuthorID, entry.Operation, true)
	}

	return entry, nil
}

// ApplyUndo pops the given user's undo stack and commits the inverse. The
// inverse is applied like a remote-originated edit with respect to history
// bookkeeping (it is not re-recorded to the undo stack) but is committed
// and broadcast exactly like any other operation, per the "undo broadcasts
// as a normal operation" design decision.
func (c *Controller) ApplyUndo(userID string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.history.Undo(userID)
	if !ok {
		return Entry{}, false, nil
	}

	if op.ID == 0 {
		op.ID = c.allocateID()
	}

	entry, err := c.commitLocked(op, false)
	if err != nil {
		return Entry{}, false, err
	}

	c.history.TransformAll(op)

	return entry, true, nil
}

// ApplyRedo mirrors ApplyUndo using the user's redo stack.
func (c *Controller) ApplyRedo(userID string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op, ok := c.history.Redo(userID)
	if !ok {
		return Entry{}, false, nil
	}

	if op.ID == 0 {
		op.ID = c.allocateID()
	}

	entry, err := c.commitLocked(op, false)
	if err != nil {
		return Entry{}, false, err
	}

	c.history.TransformAll(op)

	return entry, true, nil
}

// commitLocked applies op to the text, advances the revision, appends to
// the log, records to history if recordHistory, and notifies subscribers.
// Caller must hold c.mu.
func (c *Controller) commitLocked(op Operation, recordHistory bool) (Entry, error) {
	if op.ID == 0 {
		op.ID = c.allocateID()
	}

	newText, err := op.Apply(c.text)
	if err != nil {
		return Entry{}, err
	}

	c.text = newText
	c.revision++

	entry := Entry{Revision: c.revision, Operation: op}
	c.log = append(c.log, entry)

	if recordHistory && op.Source == SourceLocal {
		c.history.Record(op.AuthorID, op, true)
	}

	c.compactLocked()
	c.notify(entry)

	return entry, nil
}

// SetCompactionThreshold enables in-process log compaction: once the log
// holds more than threshold entries, the oldest are dropped so that only
// the newest threshold entries remain. A threshold of 0 disables compaction (the default),
// keeping the whole log, which ApplyRemote's fold-forward needs for
// clients that might lag arbitrarily far behind — callers that enable
// compaction accept that very stale ApplyRemote calls will fail with
// ErrBaseRevisionCompacted.
func (c *Controller) SetCompactionThreshold(threshold int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.compactBelow = threshold
	c.compactLocked()
}

func (c *Controller) compactLocked() {
	if c.compactBelow <= 0 || len(c.log) <= c.compactBelow {
		return
	}

	cut := len(c.log) - c.compactBelow
	c.log = append([]Entry(nil), c.log[cut:]...)
}

// LogSince returns every committed entry with Revision > fromRevision,
// oldest first, along with the controller's current revision. It reports
// ErrBaseRevisionCompacted if fromRevision predates the retained window,
// so a caller (the dispatcher's SyncRequest handling) can fall back to
// shipping a full snapshot instead.
func (c *Controller) LogSince(fromRevision int64) ([]Entry, int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.log) > 0 && fromRevision < c.log[0].Revision-1 {
		return nil, 0, ErrBaseRevisionCompacted
	}

	var suffix []Entry

	for _, entry := range c.log {
		if entry.Revision > fromRevision {
			suffix = append(suffix, entry)
		}
	}

	return suffix, c.revision, nil
}

// OldestRetainedRevision reports the earliest revision ApplyRemote can
// still fold against; 0 if the log has never been compacted.
func (c *Controller) OldestRetainedRevision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.log) == 0 {
		return c.revision
	}

	return c.log[0].Revision - 1
}

// Revision returns the current revision without the text.
func (c *Controller) Revision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.revision
}

// UndoCount and RedoCount expose the author's stack depth, for sync
// responses and diagnostics.
func (c *Controller) UndoCount(userID string) int {
	return c.history.UndoCount(userID)
}

func (c *Controller) RedoCount(userID string) int {
	return c.history.RedoCount(userID)
}
