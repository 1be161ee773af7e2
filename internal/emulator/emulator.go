// Package emulator adapts the vt10x virtual terminal to the capability
// surface the shell actor consumes: feed bytes, read rendered rows, read
// the window title, read the cursor, resize.
//
// The adapter is the sole owner of emulation state. All access goes through
// one mutex; vt10x itself is not safe for concurrent use.
package emulator

import (
	"sync"

	"github.com/tuzig/vt10x"
)

const (
	// DefaultCols and DefaultRows size new emulators when the caller does
	// not say otherwise, matching the PTY dimensions requested at session
	// creation.
	DefaultCols = 80
	DefaultRows = 24
)

// Emulator wraps a vt10x terminal.
type Emulator struct {
	mu   sync.Mutex
	term vt10x.Terminal
	cols int
	rows int
}

// New creates an emulator with the given grid size. Non-positive dimensions
// fall back to the defaults.
func New(cols, rows int) *Emulator {
	if cols <= 0 {
		cols = DefaultCols
	}
	if rows <= 0 {
		rows = DefaultRows
	}
	return &Emulator{
		term: vt10x.New(vt10x.WithSize(cols, rows)),
		cols: cols,
		rows: rows,
	}
}

// Feed consumes raw bytes from the remote side, advancing the emulation.
func (e *Emulator) Feed(p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.term.Write(p)
}

// Title returns the window title most recently set by the byte stream
// (OSC 0/2), or "" if none was set.
func (e *Emulator) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term.Title()
}

// Rows renders the visible grid at the given width. Each row is returned
// with trailing blanks trimmed; a row with no printable content comes back
// as an empty slice. Widths beyond the current grid render at grid width.
func (e *Emulator) Rows(width int) [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.cols
	if width > 0 && width < w {
		w = width
	}

	out := make([][]byte, e.rows)
	for y := 0; y < e.rows; y++ {
		line := make([]rune, 0, w)
		for x := 0; x < w; x++ {
			c := e.term.Cell(x, y).Char
			if c == 0 {
				c = ' '
			}
			line = append(line, c)
		}
		// Trim trailing blanks so empty rows render as empty slices.
		end := len(line)
		for end > 0 && line[end-1] == ' ' {
			end--
		}
		out[y] = []byte(string(line[:end]))
	}
	return out
}

// Cursor returns the current cursor position as (row, col).
func (e *Emulator) Cursor() (row, col int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.term.Cursor()
	return cur.Y, cur.X
}

// Resize changes the emulated grid dimensions.
func (e *Emulator) Resize(cols, rows int) {
	if cols <= 0 || rows <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.term.Resize(cols, rows)
	e.cols = cols
	e.rows = rows
}

// Size returns the current grid dimensions.
func (e *Emulator) Size() (cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cols, e.rows
}
