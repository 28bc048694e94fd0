// Package wire defines the JSON envelope exchanged between clients and the
// server, and the stable integer type codes carried in it. Grounded on
// teacher internal/ws/message.go's envelope shape, expanded from its six
// string-enum message types to the full type-code table.
package wire

// Type is the stable integer discriminant carried in every envelope.
type Type int

const (
	// Auth: 100s.
	TypeLogin    Type = 100
	TypeLogout   Type = 101
	TypeRegister Type = 102
	TypeSuccess  Type = 103
	TypeFailure  Type = 104

	// Document: 200s.
	TypeDocCreate   Type = 200
	TypeDocOpen     Type = 201
	TypeDocClose    Type = 202
	TypeDocList     Type = 203
	TypeDocInfo     Type = 204
	TypeDocDelete   Type = 205
	TypeDocRename   Type = 206
	TypeDocResponse Type = 207

	// Edit: 300s.
	TypeEditInsert  Type = 300
	TypeEditDelete  Type = 301
	TypeEditReplace Type = 302
	TypeEditApply   Type = 303 // ACK
	TypeEditReject  Type = 304 // NACK
	TypeEditUndo    Type = 305
	TypeEditRedo    Type = 306

	// Sync: 400s.
	TypeSyncRequest  Type = 400
	TypeSyncResponse Type = 401
	TypeSyncState    Type = 402
	TypeSyncAck      Type = 403

	// Presence: 500s.
	TypePresenceJoin      Type = 500
	TypePresenceLeave     Type = 501
	TypePresenceCursor    Type = 502
	TypePresenceSelection Type = 503
	TypePresenceUpdate    Type = 504

	// System: 900s.
	TypeSystemError      Type = 900
	TypeSystemInfo       Type = 901
	TypeSystemHeartbeat  Type = 902
	TypeSystemDisconnect Type = 903
)

func (t Type) String() string {
	switch t {
	case TypeLogin:
		return "login"
	case TypeLogout:
		return "logout"
	case TypeRegister:
		return "register"
	case TypeSuccess:
		return "success"
	case TypeFailure:
		return "failure"
	case TypeDocCreate:
		return "doc_create"
	case TypeDocOpen:
		return "doc_open"
	case TypeDocClose:
		return "doc_close"
	case TypeDocList:
		return "doc_list"
	case TypeDocInfo:
		return "doc_info"
	case TypeDocDelete:
		return "doc_delete"
	case TypeDocRename:
		return "doc_rename"
	case TypeDocResponse:
		return "doc_response"
	case TypeEditInsert:
		return "edit_insert"
	case TypeEditDelete:
		return "edit_delete"
	case TypeEditReplace:
		return "edit_replace"
	case TypeEditApply:
		return "edit_apply"
	case TypeEditReject:
		return "edit_reject"
	case TypeEditUndo:
		return "edit_undo"
	case TypeEditRedo:
		return "edit_redo"
	case TypeSyncRequest:
		return "sync_request"
	case TypeSyncResponse:
		return "sync_response"
	case TypeSyncState:
		return "sync_state"
	case TypeSyncAck:
		return "sync_ack"
	case TypePresenceJoin:
		return "presence_join"
	case TypePresenceLeave:
		return "presence_leave"
	case TypePresenceCursor:
		return "presence_cursor"
	case TypePresenceSelection:
		return "presence_selection"
	case TypePresenceUpdate:
		return "presence_update"
	case TypeSystemError:
		return "system_error"
	case TypeSystemInfo:
		return "system_info"
	case TypeSystemHeartbeat:
		return "system_heartbeat"
	case TypeSystemDisconnect:
		return "system_disconnect"
	default:
		return "unknown"
	}
}

// IsEdit reports whether t is one of the Edit-kind codes the dispatcher
// queues against document ordering.
func (t Type) IsEdit() bool {
	switch t {
	case TypeEditInsert, TypeEditDelete, TypeEditReplace, TypeEditApply, TypeEditReject, TypeEditUndo, TypeEditRedo:
		return true
	default:
		return false
	}
}

// IsPresence reports whether t is a Presence-kind code, eligible for
// head-of-line drop under backpressure.
func (t Type) IsPresence() bool {
	switch t {
	case TypePresenceJoin, TypePresenceLeave, TypePresenceCursor, TypePresenceSelection, TypePresenceUpdate:
		return true
	default:
		return false
	}
}
