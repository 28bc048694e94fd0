package ot_test

import (
	"encoding/json"
	"testing"

	"github.com/arashov/collabedit/internal/ot"
)

func TestOperation_ApplyInsert(t *testing.T) {
	t.Parallel()

	op := ot.NewInsert(2, "XX", "alice")

	result, err := op.Apply([]rune("HELLO"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if string(result) != "HEXXLLO" {
		t.Errorf("got %q", string(result))
	}
}

func TestOperation_ApplyInsert_OutOfRange(t *testing.T) {
	t.Parallel()

	op := ot.NewInsert(99, "X", "alice")

	if _, err := op.Apply([]rune("HI")); err != ot.ErrInvalidPosition {
		t.Errorf("expected ErrInvalidPosition, got %v", err)
	}
}

func TestOperation_ApplyDelete_CapturesText(t *testing.T) {
	t.Parallel()

	op := ot.NewDelete(1, 3, "", "alice")

	result, err := op.Apply([]rune("HELLO"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if string(result) != "HO" {
		t.Errorf("got %q", string(result))
	}

	if op.Text != "ELL" {
		t.Errorf("expected captured text ELL, got %q", op.Text)
	}
}

func TestOperation_ApplyDelete_ZeroLengthIsNoop(t *testing.T) {
	t.Parallel()

	op := ot.NewDelete(2, 0, "", "alice")

	result, err := op.Apply([]rune("HELLO"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if string(result) != "HELLO" {
		t.Errorf("got %q", string(result))
	}
}

func TestOperation_ApplyComposite_AllOrNothing(t *testing.T) {
	t.Parallel()

	op := ot.NewComposite("alice",
		ot.NewInsert(0, "X", "alice"),
		ot.NewDelete(99, 1, "", "alice"), // out of range once X is inserted
	)

	if _, err := op.Apply([]rune("HI")); err != ot.ErrCompositeValidation {
		t.Errorf("expected ErrCompositeValidation, got %v", err)
	}
}

func TestOperation_ApplyComposite_Succeeds(t *testing.T) {
	t.Parallel()

	op := ot.NewComposite("alice",
		ot.NewInsert(0, "X", "alice"),
		ot.NewDelete(1, 1, "", "alice"),
	)

	result, err := op.Apply([]rune("HI"))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if string(result) != "XI" {
		t.Errorf("got %q", string(result))
	}
}

func TestOperation_InvertInsert(t *testing.T) {
	t.Parallel()

	op := ot.NewInsert(2, "XX", "alice")

	inv, err := op.Invert()
	if err != nil {
		t.Fatalf("invert: %v", err)
	}

	if !inv.IsDelete() || inv.Position != 2 || inv.Length != 2 {
		t.Errorf("unexpected inverse: %+v", inv)
	}
}

func TestOperation_InvertDelete_RequiresCapturedText(t *testing.T) {
	t.Parallel()

	op := ot.NewDelete(2, 3, "", "alice")

	if _, err := op.Invert(); err != ot.ErrInversionUnavailable {
		t.Errorf("expected ErrInversionUnavailable, got %v", err)
	}
}

func TestOperation_InvertDelete_RoundTrip(t *testing.T) {
	t.Parallel()

	original := []rune("HELLO")
	op := ot.NewDelete(1, 3, "", "alice")

	deleted, err := op.Apply(original)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	inv, err := op.Invert()
	if err != nil {
		t.Fatalf("invert: %v", err)
	}

	restored, err := inv.Apply(deleted)
	if err != nil {
		t.Fatalf("apply inverse: %v", err)
	}

	if string(restored) != string(original) {
		t.Errorf("round trip failed: got %q, want %q", string(restored), string(original))
	}
}

func TestOperation_InvertComposite_ReversesOrder(t *testing.T) {
	t.Parallel()

	op := ot.NewComposite("alice",
		ot.NewInsert(0, "X", "alice"),
		ot.NewInsert(1, "Y", "alice"),
	)

	inv, err := op.Invert()
	if err != nil {
		t.Fatalf("invert: %v", err)
	}

	if len(inv.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(inv.Children))
	}

	// Undoing "insert Y at 1" must happen before undoing "insert X at 0".
	if inv.Children[0].Position != 1 || inv.Children[1].Position != 0 {
		t.Errorf("inverse children not reversed: %+v", inv.Children)
	}
}

func TestOperation_CloneIsIndependent(t *testing.T) {
	t.Parallel()

	op := ot.NewComposite("alice", ot.NewInsert(0, "X", "alice"))
	clone := op.Clone()

	clone.Children[0].Text = "changed"

	if op.Children[0].Text == "changed" {
		t.Errorf("clone shares state with original")
	}
}

func TestOperation_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []ot.Operation{
		ot.NewInsert(3, "abc", "alice"),
		ot.NewDelete(1, 2, "hi", "bob"),
		ot.NewComposite("carol", ot.NewInsert(0, "x", "carol"), ot.NewDelete(1, 1, "y", "carol")),
	}

	for _, op := range cases {
		data, err := json.Marshal(op)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		var decoded ot.Operation
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}

		if decoded.Type != op.Type || decoded.Position != op.Position ||
			decoded.Text != op.Text || decoded.Length != op.Length {
			t.Errorf("round trip mismatch: got %+v, want %+v", decoded, op)
		}
	}
}

func TestOperation_UnmarshalUnknownType(t *testing.T) {
	t.Parallel()

	var op ot.Operation
	err := json.Unmarshal([]byte(`{"type":"bogus"}`), &op)

	if err != ot.ErrUnknownOpType {
		t.Errorf("expected ErrUnknownOpType, got %v", err)
	}
}

func TestOperation_IsNoop(t *testing.T) {
	t.Parallel()

	if !ot.NewDelete(0, 0, "", "alice").IsNoop() {
		t.Errorf("zero-length delete should be a no-op")
	}

	if ot.NewInsert(0, "", "alice").IsNoop() {
		t.Errorf("insert is never a no-op, even with empty text")
	}
}
