package transport_test

import (
	"testing"
	"time"

	"github.com/arashov/collabedit/internal/transport"
	"github.com/arashov/collabedit/internal/wire"
)

func TestClient_TrySend_DeliversViaWriterGoroutine(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := transport.NewClient("c1", "sess1", conn)

	env, err := wire.NewEnvelope(wire.TypeSystemHeartbeat, "", "", 0, 0, nil)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	if !client.TrySend(env) {
		t.Fatalf("expected TrySend to succeed")
	}

	deadline := time.After(time.Second)
	for len(conn.Messages()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if conn.Messages()[0].Type != wire.TypeSystemHeartbeat {
		t.Errorf("unexpected delivered type: %v", conn.Messages()[0].Type)
	}
}

func TestClient_TrySend_FailsAfterClose(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := transport.NewClient("c1", "sess1", conn)

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	env, err := wire.NewEnvelope(wire.TypeSystemHeartbeat, "", "", 0, 0, nil)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	if client.TrySend(env) {
		t.Errorf("expected TrySend to fail after close")
	}

	if !conn.IsClosed() {
		t.Errorf("expected underlying connection to be closed")
	}
}

func TestClient_Close_Idempotent(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := transport.NewClient("c1", "sess1", conn)

	if err := client.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestClient_Receive(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := transport.NewClient("c1", "sess1", conn)

	sent, err := wire.NewEnvelope(wire.TypeEditInsert, "c1", "sess1", 1, 0, nil)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	conn.incoming <- sent

	received, err := client.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if received.Type != wire.TypeEditInsert {
		t.Errorf("expected type %v, got %v", wire.TypeEditInsert, received.Type)
	}
}

func TestClient_DocID_SetAndGet(t *testing.T) {
	t.Parallel()

	conn := newMockConn()
	client := transport.NewClient("c1", "sess1", conn)

	client.SetDocID("doc1")

	if client.DocID() != "doc1" {
		t.Errorf("expected doc1, got %s", client.DocID())
	}
}
