// Package dispatch serializes every edit to a document through a single
// FIFO actor, fusing the operational-transformation controller with
// session broadcast. Grounded on teacher internal/collab/session.go's
// ApplyOperation pipeline (check -> apply+persist -> snapshot -> broadcast)
// and internal/collab/manager.go's double-checked-locking
// GetOrCreateSession, generalized from a single mutex held for the call's
// duration to a buffered channel drained by one goroutine per document, per
// spec.md §5's per-document total order requirement.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arashov/collabedit/internal/ot"
	"github.com/arashov/collabedit/internal/transport"
	"github.com/arashov/collabedit/internal/wire"
)

const queueBufferSize = 256

// Common errors.
var ErrQueueSaturated = errors.New("dispatch: document queue is saturated")

// Dispatcher owns one document's Controller and is the only goroutine that
// ever mutates it. SubmitEdit, SubmitUndo and SubmitRedo enqueue a closure
// onto queue and wait for it to run, so calls from many goroutines still
// execute in the order they were submitted; ForwardPresence enqueues
// without waiting, and SubmitSync and Snapshot read the controller
// directly.
type Dispatcher struct {
	docID      string
	controller *ot.Controller
	hub        *transport.Hub
	pool       *Pool

	queue chan func()
	done  chan struct{}
}

// NewDispatcher starts a dispatcher for docID and its background run loop.
// Stop must be called to release the goroutine once the document is no
// longer needed.
func NewDispatcher(docID string, controller *ot.Controller, hub *transport.Hub, pool *Pool) *Dispatcher {
	d := &Dispatcher{
		docID:      docID,
		controller: controller,
		hub:        hub,
		pool:       pool,
		queue:      make(chan func(), queueBufferSize),
		done:       make(chan struct{}),
	}

	go d.run()

	return d
}

func (d *Dispatcher) run() {
	for {
		select {
		case fn := <-d.queue:
			fn()
		case <-d.done:
			return
		}
	}
}

// Stop drains no further tasks after it returns; in-flight ones already
// pulled from the queue still finish.
func (d *Dispatcher) Stop() {
	close(d.done)
}

// enqueue submits fn to the document's FIFO queue, blocking only while the
// queue is full; it returns as soon as the queue accepts fn, or with
// ctx.Err() if ctx is done first. It does not wait for fn to run (callers
// wait on their own result channel), and fn still runs once accepted even
// if ctx is canceled afterwards.
func (d *Dispatcher) enqueue(ctx context.Context, fn func()) error {
	select {
	case d.queue <- fn:
		return nil
	default:
	}

	select {
	case d.queue <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitEdit applies op, submitted against baseRevision, to the document.
// The operation is always folded forward across whatever has committed
// since baseRevision (ot.Controller.ApplyRemote's job whether or not
// anything actually happened to commit in the meantime) since the
// dispatcher is the only place that can guarantee baseRevision was still
// current at submission time. On success the originator receives an ACK
// (TypeEditApply carrying the resulting revision) and every other
// subscriber receives the transformed operation; on failure the originator
// receives a NACK (TypeEditReject) and nothing is broadcast.
func (d *Dispatcher) SubmitEdit(ctx context.Context, clientID string, op ot.Operation, baseRevision int64) error {
	result := make(chan error, 1)

	err := d.enqueue(ctx, func() {
		result <- d.processEdit(ctx, clientID, op, baseRevision)
	})
	if err != nil {
		return err
	}

	return <-result
}

func (d *Dispatcher) processEdit(ctx context.Context, clientID string, op ot.Operation, baseRevision int64) error {
	if err := d.pool.Acquire(ctx); err != nil {
		return err
	}
	defer d.pool.Release()

	entry, err := d.controller.ApplyRemote(op, baseRevision)
	if err != nil {
		d.reject(clientID, op.ID, err)
		return err
	}

	d.ack(clientID, entry)
	d.broadcastEdit(clientID, entry)

	return nil
}

// SubmitUndo pops the calling user's undo stack and commits the inverse,
// exactly like any other edit once popped: it is folded into the log,
// acknowledged to the originator, and broadcast to every other subscriber.
// ok is false if the user's undo stack was empty.
func (d *Dispatcher) SubmitUndo(ctx context.Context, clientID, userID string) (ok bool, err error) {
	result := make(chan struct {
		ok  bool
		err error
	}, 1)

	enqueueErr := d.enqueue(ctx, func() {
		o, e := d.processUndoRedo(ctx, clientID, userID, d.controller.ApplyUndo)
		result <- struct {
			ok  bool
			err error
		}{o, e}
	})
	if enqueueErr != nil {
		return false, enqueueErr
	}

	r := <-result

	return r.ok, r.err
}

// SubmitRedo mirrors SubmitUndo using the user's redo stack.
func (d *Dispatcher) SubmitRedo(ctx context.Context, clientID, userID string) (ok bool, err error) {
	result := make(chan struct {
		ok  bool
		err error
	}, 1)

	enqueueErr := d.enqueue(ctx, func() {
		o, e := d.processUndoRedo(ctx, clientID, userID, d.controller.ApplyRedo)
		result <- struct {
			ok  bool
			err error
		}{o, e}
	})
	if enqueueErr != nil {
		return false, enqueueErr
	}

	r := <-result

	return r.ok, r.err
}

func (d *Dispatcher) processUndoRedo(ctx context.Context, clientID, userID string, apply func(string) (ot.Entry, bool, error)) (bool, error) {
	if err := d.pool.Acquire(ctx); err != nil {
		return false, err
	}
	defer d.pool.Release()

	entry, ok, err := apply(userID)
	if err != nil {
		d.reject(clientID, 0, err)
		return false, err
	}

	if !ok {
		return false, nil
	}

	d.ack(clientID, entry)
	d.broadcastEdit(clientID, entry)

	return true, nil
}

// SubmitSync answers a client's request to catch up from fromRevision. If
// the log still retains everything since fromRevision it returns the
// missing suffix (TypeSyncResponse); if the request predates the retained
// window (ot.ErrBaseRevisionCompacted) it falls back to a full snapshot
// (TypeSyncState), implementing spec.md §7's RevisionGap handling. Sync
// requests do not need document ordering and are answered directly rather
// than through the queue.
func (d *Dispatcher) SubmitSync(clientID string, fromRevision int64) {
	entries, revision, err := d.controller.LogSince(fromRevision)
	if err != nil {
		content, rev := d.controller.Snapshot()

		env, buildErr := wire.NewEnvelope(wire.TypeSyncState, "", "", 0, nowUnix(), wire.SyncStatePayload{
			DocumentID: d.docID,
			Content:    content,
			Revision:   rev,
		})
		if buildErr == nil {
			d.hub.Send(clientID, env)
		}

		return
	}

	env, err := wire.NewEnvelope(wire.TypeSyncResponse, "", "", 0, nowUnix(), wire.SyncResponsePayload{
		DocumentID: d.docID,
		Operations: entries,
		Revision:   revision,
	})
	if err != nil {
		return
	}

	d.hub.Send(clientID, env)
}

// Snapshot returns the document's current text and revision, bypassing the
// queue: a read of already-committed state needs no ordering against
// in-flight edits.
func (d *Dispatcher) Snapshot() (string, int64) {
	return d.controller.Snapshot()
}

// ForwardPresence relays a cursor or selection envelope to every other
// subscriber of the document verbatim. The relay runs on the document's
// FIFO queue, so it is ordered after the edits submitted before it, but
// the caller does not wait for it: when the queue is full the presence
// update is dropped instead of blocking.
func (d *Dispatcher) ForwardPresence(senderClientID string, env wire.Envelope) {
	select {
	case d.queue <- func() { d.hub.Broadcast(d.docID, env, senderClientID) }:
	default:
	}
}

func (d *Dispatcher) ack(clientID string, entry ot.Entry) {
	env, err := wire.NewEnvelope(wire.TypeEditApply, "", "", 0, nowUnix(), wire.EditPayload{
		DocumentID:      d.docID,
		DocumentVersion: entry.Revision,
		OperationID:     entry.Operation.ID,
		Operation:       entry.Operation,
	})
	if err != nil {
		return
	}

	d.hub.Send(clientID, env)
}

func (d *Dispatcher) reject(clientID string, operationID int64, cause error) {
	env, err := wire.NewEnvelope(wire.TypeEditReject, "", "", 0, nowUnix(), wire.EditPayload{
		DocumentID:  d.docID,
		OperationID: operationID,
		Reason:      errorCode(cause),
	})
	if err != nil {
		return
	}

	d.hub.Send(clientID, env)
}

func (d *Dispatcher) broadcastEdit(originatorClientID string, entry ot.Entry) {
	env, err := wire.NewEnvelope(wire.TypeEditApply, "", "", 0, nowUnix(), wire.EditPayload{
		DocumentID:      d.docID,
		DocumentVersion: entry.Revision,
		OperationID:     entry.Operation.ID,
		Operation:       entry.Operation,
	})
	if err != nil {
		return
	}

	d.hub.Broadcast(d.docID, env, originatorClientID)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, ot.ErrBaseRevisionCompacted):
		return wire.ErrorCodeRevisionGap
	case errors.Is(err, ot.ErrInvalidPosition), errors.Is(err, ot.ErrCompositeValidation):
		return wire.ErrorCodeApplyRejected
	default:
		return fmt.Sprintf("%s:%v", wire.ErrorCodeApplyRejected, err)
	}
}

// nowUnix is overridden in tests so envelopes stay deterministic.
var nowUnix = func() int64 { return time.Now().UnixMilli() }
