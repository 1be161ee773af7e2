package emulator

import (
	"strings"
	"testing"
)

func TestNewAppliesDefaults(t *testing.T) {
	e := New(0, -5)
	cols, rows := e.Size()
	if cols != DefaultCols || rows != DefaultRows {
		t.Fatalf("size = %dx%d, want %dx%d", cols, rows, DefaultCols, DefaultRows)
	}
}

func TestFeedRendersText(t *testing.T) {
	e := New(20, 4)
	e.Feed([]byte("hello"))

	rows := e.Rows(20)
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if string(rows[0]) != "hello" {
		t.Fatalf("row 0 = %q, want %q", rows[0], "hello")
	}
	for i := 1; i < 4; i++ {
		if len(rows[i]) != 0 {
			t.Fatalf("row %d = %q, want empty", i, rows[i])
		}
	}
}

func TestRowsTrimTrailingBlanks(t *testing.T) {
	e := New(20, 3)
	// "a   b" followed by trailing spaces: the inner spaces stay, the
	// trailing ones go.
	e.Feed([]byte("a   b   "))

	rows := e.Rows(20)
	if string(rows[0]) != "a   b" {
		t.Fatalf("row 0 = %q, want %q", rows[0], "a   b")
	}
}

func TestRowsWidthClamping(t *testing.T) {
	e := New(10, 2)
	e.Feed([]byte("0123456789"))

	// Narrower than the grid truncates.
	rows := e.Rows(4)
	if string(rows[0]) != "0123" {
		t.Fatalf("row 0 at width 4 = %q, want %q", rows[0], "0123")
	}

	// Wider than the grid renders at grid width.
	rows = e.Rows(100)
	if string(rows[0]) != "0123456789" {
		t.Fatalf("row 0 at width 100 = %q, want %q", rows[0], "0123456789")
	}
}

func TestTitle(t *testing.T) {
	e := New(20, 4)
	if got := e.Title(); got != "" {
		t.Fatalf("initial title = %q, want empty", got)
	}

	e.Feed([]byte("\x1b]0;build log\x07"))
	if got := e.Title(); got != "build log" {
		t.Fatalf("title = %q, want %q", got, "build log")
	}
}

func TestCursorTracksOutput(t *testing.T) {
	e := New(20, 4)
	if row, col := e.Cursor(); row != 0 || col != 0 {
		t.Fatalf("initial cursor = (%d, %d), want (0, 0)", row, col)
	}

	e.Feed([]byte("ab\r\ncd"))
	if row, col := e.Cursor(); row != 1 || col != 2 {
		t.Fatalf("cursor = (%d, %d), want (1, 2)", row, col)
	}
}

func TestResize(t *testing.T) {
	e := New(80, 24)
	e.Resize(120, 40)
	if cols, rows := e.Size(); cols != 120 || rows != 40 {
		t.Fatalf("size = %dx%d, want 120x40", cols, rows)
	}

	// Invalid dimensions are ignored.
	e.Resize(0, -1)
	if cols, rows := e.Size(); cols != 120 || rows != 40 {
		t.Fatalf("size after invalid resize = %dx%d, want 120x40", cols, rows)
	}
}

func TestResizeRetainsContent(t *testing.T) {
	e := New(40, 10)
	e.Feed([]byte("persistent"))
	e.Resize(40, 12)

	rows := e.Rows(40)
	joined := make([]string, len(rows))
	for i, r := range rows {
		joined[i] = string(r)
	}
	if !strings.Contains(strings.Join(joined, "\n"), "persistent") {
		t.Fatalf("content lost across resize, rows = %q", joined)
	}
}
