package shell

import (
	"log"
	"sync"
	"time"
)

// Emulator is the terminal-emulation capability a PTY-backed Shell feeds.
// Implementations own their emulation state and synchronize internally; the
// Shell only ever goes through this surface. See internal/emulator for the
// vt10x-backed implementation.
type Emulator interface {
	// Feed consumes raw bytes from the remote side.
	Feed(p []byte)
	// Title returns the current window title, or "" if none was set.
	Title() string
	// Rows renders the visible grid at the given width. A row with no
	// printable content is returned as an empty slice.
	Rows(width int) [][]byte
	// Cursor returns the current cursor position as (row, col).
	Cursor() (row, col int)
	// Resize changes the emulated grid dimensions.
	Resize(cols, rows int)
}

// ShellBuffer is a point-in-time rendering of the emulator's visible grid.
// Trailing fully-empty rows are trimmed; Rows is empty when every row is.
type ShellBuffer struct {
	Rows   [][]byte `json:"rows"`
	Cursor [2]int   `json:"cursor"` // (row, col)
}

// ShellInfo is the on-demand metadata snapshot for a session.
type ShellInfo struct {
	Token     Token     `json:"token"`
	Title     string    `json:"title"`
	HasPTY    bool      `json:"has_pty"`
	CreatedAt time.Time `json:"created_at"`
}

// Config carries the immutable attributes of a new Shell.
type Config struct {
	// HasPTY records whether the remote side allocated a pseudo-terminal.
	// Without a PTY no emulation or title tracking happens.
	HasPTY bool
	// DefaultTitle is reported while the emulator has no title of its own.
	DefaultTitle string
	// Emulator backs Screen and title tracking. Required when HasPTY.
	Emulator Emulator
}

// Shell is the session actor: it owns one remote channel, one outbound
// write queue, and (for PTY sessions) one terminal emulator. Control
// methods are safe to call concurrently with each other and with Run.
type Shell struct {
	token     Token
	hasPTY    bool
	defTitle  string
	createdAt time.Time

	// channel is present while the session is connected. Close takes it
	// exactly once; it is never restored.
	chanMu  sync.Mutex
	channel Channel

	// queue is installed by Run before its first loop iteration and closed
	// when the loop exits, which is when Write starts failing.
	queueMu sync.Mutex
	queue   *writeQueue

	// emu synchronizes internally; nil when hasPTY is false.
	emu Emulator
}

// New creates a Shell around an already-open remote channel. The caller is
// expected to start the protocol loop with Run on its own goroutine.
func New(token Token, channel Channel, cfg Config) *Shell {
	s := &Shell{
		token:     token,
		hasPTY:    cfg.HasPTY,
		defTitle:  cfg.DefaultTitle,
		createdAt: time.Now(),
		channel:   channel,
	}
	if cfg.HasPTY {
		s.emu = cfg.Emulator
	}
	return s
}

// Token returns the session's immutable identity.
func (s *Shell) Token() Token {
	return s.token
}

// Write enqueues p on the outbound queue; the protocol loop forwards queued
// writes to the remote channel in FIFO order. Returns ErrDisconnected when
// the loop has not started or has already torn the queue down. Never blocks
// on the remote side.
func (s *Shell) Write(p []byte) error {
	s.queueMu.Lock()
	q := s.queue
	s.queueMu.Unlock()

	if q == nil {
		return ErrDisconnected
	}
	return q.push(p)
}

// CloseWrites closes the outbound queue, which is the cooperative shutdown
// signal for the protocol loop: after flushing any queued writes the loop
// closes the channel and exits. No-op before Run has installed the queue.
func (s *Shell) CloseWrites() {
	s.queueMu.Lock()
	q := s.queue
	s.queueMu.Unlock()

	if q != nil {
		q.close()
	}
}

// Resize sends a window-change request over the channel and resizes the
// emulator to the same dimensions. The two effects are not atomic: a Close
// racing a Resize may close the channel between them, leaving the emulator
// resized with the window-change undelivered. Returns ErrDisconnected when
// no channel is present.
func (s *Shell) Resize(cols, rows int) error {
	s.chanMu.Lock()
	ch := s.channel
	if ch == nil {
		s.chanMu.Unlock()
		return ErrDisconnected
	}
	err := ch.WindowChange(cols, rows)
	s.chanMu.Unlock()
	if err != nil {
		return err
	}

	if s.emu != nil {
		s.emu.Resize(cols, rows)
	}
	return nil
}

// Screen renders the current emulator content at the given width, trimming
// trailing fully-empty rows. It reads only local state, so it succeeds even
// after disconnection, returning the last-known screen. Sessions without a
// PTY always render empty. The rows argument is accepted for API symmetry;
// rendering uses the emulator's current height.
func (s *Shell) Screen(cols, rows int) (ShellBuffer, error) {
	if s.emu == nil {
		return ShellBuffer{}, nil
	}

	grid := s.emu.Rows(cols)
	last := -1
	for i, row := range grid {
		if len(row) > 0 {
			last = i
		}
	}
	grid = grid[:last+1]

	curRow, curCol := s.emu.Cursor()
	return ShellBuffer{Rows: grid, Cursor: [2]int{curRow, curCol}}, nil
}

// Close takes the channel handle and closes it. Idempotent: a second call
// observes no channel and succeeds without effect. Close does not stop the
// protocol loop directly; the loop observes the disconnection through its
// own receive path and exits on its own.
func (s *Shell) Close() error {
	s.chanMu.Lock()
	ch := s.channel
	s.channel = nil
	s.chanMu.Unlock()

	if ch == nil {
		return nil
	}
	return ch.Close()
}

// Info assembles the metadata snapshot from current state. Never fails.
func (s *Shell) Info() ShellInfo {
	return ShellInfo{
		Token:     s.token,
		Title:     s.title(),
		HasPTY:    s.hasPTY,
		CreatedAt: s.createdAt,
	}
}

// Run is the protocol loop. It installs the outbound queue (making Write
// usable), then waits on whichever happens first each iteration: a queued
// write to forward, or the next remote channel message. It exits when both
// EOF and an exit status have been observed, when the outbound queue is
// closed (graceful close), or on the first transport error. Callers run it
// on a dedicated goroutine, once per Shell.
func (s *Shell) Run(cb Callback) error {
	q := newWriteQueue()
	s.queueMu.Lock()
	s.queue = q
	s.queueMu.Unlock()
	defer q.close()

	msgs := s.messages()
	if msgs == nil {
		return ErrDisconnected
	}

	var (
		status     uint32
		haveStatus bool
		eof        bool
	)
	for {
		select {
		case <-q.ready:
			for {
				data, ok := q.pop()
				if !ok {
					break
				}
				if err := s.send(data); err != nil {
					return err
				}
			}
			if q.isClosed() {
				return s.Close()
			}

		case msg, ok := <-msgs:
			if !ok {
				return ErrDisconnected
			}
			switch msg.Kind {
			case MsgData:
				changed := s.process(msg.Data)
				cb.Rx(0, msg.Data)
				if changed {
					cb.Info(s.Info())
				}

			case MsgExtendedData:
				// Only the stderr stream participates; other
				// extended streams are dropped entirely.
				if msg.Ext == 1 {
					s.process(msg.Data)
					cb.Rx(1, msg.Data)
				}

			case MsgExitStatus:
				status, haveStatus = msg.Status, true
				if eof {
					log.Printf("[shell] %s ended (exit status %d)", s.token, status)
					return nil
				}

			case MsgEOF:
				eof = true
				if haveStatus {
					log.Printf("[shell] %s ended (exit status %d)", s.token, status)
					return nil
				}

			case MsgClose:
				// Informational; termination is driven by EOF plus
				// exit status, or by queue closure.
				log.Printf("[shell] %s channel close", s.token)

			default:
				log.Printf("[shell] %s ignoring message kind %d", s.token, msg.Kind)
			}
		}
	}
}

// messages snapshots the inbound stream under the channel lock. Returns nil
// when the channel has already been taken.
func (s *Shell) messages() <-chan Message {
	s.chanMu.Lock()
	defer s.chanMu.Unlock()
	if s.channel == nil {
		return nil
	}
	return s.channel.Messages()
}

// send forwards one queued write to the remote channel.
func (s *Shell) send(data []byte) error {
	s.chanMu.Lock()
	defer s.chanMu.Unlock()
	if s.channel == nil {
		return ErrDisconnected
	}
	return s.channel.Data(data)
}

// process feeds remote bytes to the emulator and reports whether the title
// changed as a result. Title change is detected by diffing the title before
// and after the feed. No-op for sessions without a PTY.
func (s *Shell) process(data []byte) bool {
	if !s.hasPTY || s.emu == nil {
		return false
	}
	old := s.emu.Title()
	s.emu.Feed(data)
	return s.emu.Title() != old
}

func (s *Shell) title() string {
	if s.emu != nil {
		if t := s.emu.Title(); t != "" {
			return t
		}
	}
	return s.defTitle
}
