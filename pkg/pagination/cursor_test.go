package pagination

import (
	"testing"
	"time"
)

func TestClampLimit(t *testing.T) {
	if ClampLimit(0) != DefaultLimit {
		t.Fatalf("expected default limit")
	}
	if ClampLimit(MaxLimit+1) != MaxLimit {
		t.Fatalf("expected max limit")
	}
	if ClampLimit(25) != 25 {
		t.Fatalf("expected passthrough")
	}
}

func TestKeysetBuilder(t *testing.T) {
	b := &KeysetBuilder{SortColumn: "entry_created_at", IDColumn: "address"}

	cond, args := b.Condition(&Params{}, 2)
	if cond != "" || args != nil {
		t.Fatalf("expected no condition without cursor")
	}

	cursor := &Cursor{SortKey: 100, ID: "0xabc", IsSortKey: true}
	cond, args = b.Condition(&Params{Cursor: cursor, Direction: Forward}, 2)
	if cond != "(entry_created_at, address) < ($2, $3)" {
		t.Fatalf("unexpected forward condition %q", cond)
	}
	if len(args) != 2 || args[0] != int64(100) || args[1] != "0xabc" {
		t.Fatalf("unexpected args %v", args)
	}

	cond, _ = b.Condition(&Params{Cursor: cursor, Direction: Backward}, 1)
	if cond != "(entry_created_at, address) > ($1, $2)" {
		t.Fatalf("unexpected backward condition %q", cond)
	}

	tsCursor := &Cursor{Timestamp: time.Unix(1658378621, 0).UTC(), ID: "0xdef"}
	_, args = b.Condition(&Params{Cursor: tsCursor}, 1)
	if len(args) != 2 || !args[0].(time.Time).Equal(tsCursor.Timestamp) || args[1] != "0xdef" {
		t.Fatalf("unexpected timestamp args %v", args)
	}

	if got := b.OrderBy(&Params{Direction: Forward}); got != "ORDER BY entry_created_at DESC, address DESC" {
		t.Fatalf("unexpected order %q", got)
	}
	if got := b.OrderBy(&Params{Direction: Backward}); got != "ORDER BY entry_created_at ASC, address ASC" {
		t.Fatalf("unexpected order %q", got)
	}
}
