package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/arashov/collabedit/internal/ot"
)

// ErrUnknownType is returned when decoding an envelope whose Type has no
// registered kind-specific payload.
var ErrUnknownType = errors.New("wire: unknown message type")

// Envelope is the outer JSON object every message is wrapped in, per
// spec.md §6: `{"type":<int>,"clientId":...,"sessionId":...,
// "sequenceNumber":...,"timestamp":...,...kind-specific...}`.
type Envelope struct {
	Type           Type            `json:"type"`
	ClientID       string          `json:"clientId,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	SequenceNumber uint64          `json:"sequenceNumber"`
	Timestamp      int64           `json:"timestamp"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals e.Payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}

	return json.Unmarshal(e.Payload, v)
}

// NewEnvelope builds an envelope with payload marshaled from v.
func NewEnvelope(t Type, clientID, sessionID string, seq uint64, timestamp int64, v any) (Envelope, error) {
	var raw json.RawMessage

	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, fmt.Errorf("wire: marshal payload: %w", err)
		}

		raw = data
	}

	return Envelope{
		Type:           t,
		ClientID:       clientID,
		SessionID:      sessionID,
		SequenceNumber: seq,
		Timestamp:      timestamp,
		Payload:        raw,
	}, nil
}

// LoginPayload authenticates a session (type 100).
type LoginPayload struct {
	Username string `json:"username"`
}

// AuthResultPayload answers Login/Register with success or failure (types
// 103/104).
type AuthResultPayload struct {
	Reason string `json:"reason,omitempty"`
}

// EditPayload carries one operation submission or broadcast (types
// 300-302), or an ACK/NACK (types 303/304).
type EditPayload struct {
	DocumentID      string       `json:"documentId"`
	DocumentVersion int64        `json:"documentVersion"`
	OperationID     int64        `json:"operationId"`
	Operation       ot.Operation `json:"operation"`
	Reason          string       `json:"reason,omitempty"`
}

// SyncRequestPayload asks for the log suffix from FromRevision, optionally
// bounded by ToRevision (type 400).
type SyncRequestPayload struct {
	DocumentID    string `json:"documentId"`
	FromRevision  int64  `json:"fromRevision"`
	ToRevision    int64  `json:"toRevision,omitempty"`
	HasToRevision bool   `json:"hasToRevision,omitempty"`
}

// SyncResponsePayload returns a log suffix (type 401).
type SyncResponsePayload struct {
	DocumentID string     `json:"documentId"`
	Operations []ot.Entry `json:"operations"`
	Revision   int64      `json:"revision"`
}

// SyncStatePayload returns a full snapshot when the requested revision
// predates the retained window (type 402).
type SyncStatePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
	Revision   int64  `json:"revision"`
}

// PresencePayload carries a cursor or selection update (types 502/503).
type PresencePayload struct {
	DocumentID string `json:"documentId"`
	Username   string `json:"username"`
	Position   int    `json:"position,omitempty"`
	AnchorPos  int    `json:"anchorPosition,omitempty"`
	FocusPos   int    `json:"focusPosition,omitempty"`
}

// SystemErrorPayload reports an out-of-band error (type 900).
type SystemErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// System error codes, surfaced in SystemErrorPayload.Code.
const (
	ErrorCodeApplyRejected    = "apply_rejected"
	ErrorCodeRevisionGap      = "revision_gap"
	ErrorCodeAuthFailed       = "auth_failed"
	ErrorCodeUsernameTaken    = "username_taken"
	ErrorCodeNotAuthenticated = "not_authenticated"
	ErrorCodeInvalidMessage   = "invalid_message"
	ErrorCodeInternalError    = "internal_error"
)
