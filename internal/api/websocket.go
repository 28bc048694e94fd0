package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/arashov/collabedit/internal/session"
	"github.com/arashov/collabedit/internal/transport"
	"github.com/arashov/collabedit/internal/wire"
)

// handleWebSocket handles GET /ws: upgrades the connection, allocates a
// session, and runs the message loop until the client disconnects or sends
// something unrecoverable. Every subsequent message type (login, document
// open/close, edits, sync, presence) is handled entirely over this one
// connection — there is no further HTTP surface.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade failed: %v", err)

		return
	}

	sess := s.registry.CreateSession()
	client := transport.NewClient(uuid.New().String(), sess.ID, transport.NewGorillaConn(conn))

	s.hub.Register(client)

	defer func() {
		s.hub.Unregister(client)
		_ = client.Close()
		_ = s.registry.CloseSession(sess.ID)
	}()

	s.messageLoop(client, sess)
}

// messageLoop reads envelopes until Receive errors (connection closed or
// protocol violation), dispatching each by its wire type.
func (s *Server) messageLoop(client *transport.Client, sess *session.Session) {
	for {
		env, err := client.Receive()
		if err != nil {
			return
		}

		_ = s.registry.Touch(sess.ID)

		switch {
		case env.Type == wire.TypeLogin:
			s.handleLogin(client, sess, env)
		case env.Type == wire.TypeDocOpen:
			s.handleDocOpen(client, sess, env)
		case env.Type == wire.TypeDocClose:
			s.handleDocClose(client, sess, env)
		case env.Type == wire.TypeEditUndo:
			s.handleUndo(client, sess, env)
		case env.Type == wire.TypeEditRedo:
			s.handleRedo(client, sess, env)
		case env.Type.IsEdit():
			s.handleEdit(client, sess, env)
		case env.Type == wire.TypeSyncRequest:
			s.handleSync(client, sess, env)
		case env.Type.IsPresence():
			s.handlePresence(client, sess, env)
		default:
			s.sendError(client, wire.ErrorCodeInvalidMessage, "unrecognized message type")
		}
	}
}

func (s *Server) handleLogin(client *transport.Client, sess *session.Session, env wire.Envelope) {
	var payload wire.LoginPayload
	if err := env.Decode(&payload); err != nil || payload.Username == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "login requires a username")

		return
	}

	if err := s.registry.Authenticate(sess.ID, payload.Username); err != nil {
		reason := wire.ErrorCodeAuthFailed
		if err == session.ErrUsernameTaken {
			reason = wire.ErrorCodeUsernameTaken
		}

		s.send(client, wire.TypeFailure, wire.AuthResultPayload{Reason: reason})

		return
	}

	s.send(client, wire.TypeSuccess, wire.AuthResultPayload{})
}

func (s *Server) handleDocOpen(client *transport.Client, sess *session.Session, env wire.Envelope) {
	var payload wire.SyncRequestPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "doc_open requires a documentId")

		return
	}

	if !s.requireAuthenticated(client, sess) {
		return
	}

	s.hub.Subscribe(client, payload.DocumentID)
	_ = s.registry.Subscribe(sess.ID, payload.DocumentID)

	d := s.dispatchers.GetOrCreate(payload.DocumentID)
	d.SubmitSync(client.ID, 0)
}

func (s *Server) handleDocClose(client *transport.Client, sess *session.Session, env wire.Envelope) {
	var payload wire.SyncRequestPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "doc_close requires a documentId")

		return
	}

	s.hub.Unsubscribe(client, payload.DocumentID)
	_ = s.registry.Unsubscribe(sess.ID, payload.DocumentID)
}

func (s *Server) handleEdit(client *transport.Client, sess *session.Session, env wire.Envelope) {
	if !s.requireAuthenticated(client, sess) {
		return
	}

	var payload wire.EditPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "edit requires an operation and documentId")

		return
	}

	op := payload.Operation
	op.AuthorID = sess.Username

	d := s.dispatchers.GetOrCreate(payload.DocumentID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.SubmitEdit(ctx, client.ID, op, payload.DocumentVersion); err != nil {
		log.Printf("api: edit rejected for doc %s: %v", payload.DocumentID, err)
	}
}

func (s *Server) handleUndo(client *transport.Client, sess *session.Session, env wire.Envelope) {
	if !s.requireAuthenticated(client, sess) {
		return
	}

	var payload wire.EditPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "undo requires a documentId")

		return
	}

	d := s.dispatchers.GetOrCreate(payload.DocumentID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := d.SubmitUndo(ctx, client.ID, sess.Username); err != nil {
		log.Printf("api: undo rejected for doc %s: %v", payload.DocumentID, err)
	}
}

func (s *Server) handleRedo(client *transport.Client, sess *session.Session, env wire.Envelope) {
	if !s.requireAuthenticated(client, sess) {
		return
	}

	var payload wire.EditPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "redo requires a documentId")

		return
	}

	d := s.dispatchers.GetOrCreate(payload.DocumentID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := d.SubmitRedo(ctx, client.ID, sess.Username); err != nil {
		log.Printf("api: redo rejected for doc %s: %v", payload.DocumentID, err)
	}
}

func (s *Server) handleSync(client *transport.Client, sess *session.Session, env wire.Envelope) {
	if !s.requireAuthenticated(client, sess) {
		return
	}

	var payload wire.SyncRequestPayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "sync requires a documentId")

		return
	}

	d := s.dispatchers.GetOrCreate(payload.DocumentID)
	d.SubmitSync(client.ID, payload.FromRevision)
}

func (s *Server) handlePresence(client *transport.Client, sess *session.Session, env wire.Envelope) {
	if !s.requireAuthenticated(client, sess) {
		return
	}

	var payload wire.PresencePayload
	if err := env.Decode(&payload); err != nil || payload.DocumentID == "" {
		s.sendError(client, wire.ErrorCodeInvalidMessage, "presence update requires a documentId")

		return
	}

	d := s.dispatchers.GetOrCreate(payload.DocumentID)
	d.ForwardPresence(client.ID, env)
}

func (s *Server) requireAuthenticated(client *transport.Client, sess *session.Session) bool {
	if sess.State != session.Authenticated {
		s.sendError(client, wire.ErrorCodeNotAuthenticated, "login required")

		return false
	}

	return true
}

func (s *Server) send(client *transport.Client, t wire.Type, payload any) {
	env, err := wire.NewEnvelope(t, "", "", 0, time.Now().UnixMilli(), payload)
	if err != nil {
		return
	}

	client.TrySend(env)
}

func (s *Server) sendError(client *transport.Client, code, message string) {
	s.send(client, wire.TypeSystemError, wire.SystemErrorPayload{Code: code, Message: message})
}
