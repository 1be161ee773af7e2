package shell

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lunadev/shellmux/internal/emulator"
)

// fakeChannel is an in-memory Channel with scripted inbound messages and
// recorded outbound effects.
type fakeChannel struct {
	msgs chan Message

	mu      sync.Mutex
	sent    [][]byte
	windows [][2]int
	closes  int
	sendErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{msgs: make(chan Message, 16)}
}

func (c *fakeChannel) Messages() <-chan Message { return c.msgs }

func (c *fakeChannel) Data(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	c.sent = append(c.sent, buf)
	return nil
}

func (c *fakeChannel) WindowChange(cols, rows int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows = append(c.windows, [2]int{cols, rows})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *fakeChannel) sentData() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fakeEmulator records feeds and serves scripted rows. Its Feed understands
// just enough OSC to flip the title when asked to.
type fakeEmulator struct {
	mu      sync.Mutex
	title   string
	fed     [][]byte
	rows    [][]byte
	cursor  [2]int
	resizes [][2]int
}

func (e *fakeEmulator) Feed(p []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fed = append(e.fed, append([]byte(nil), p...))
	if bytes.HasPrefix(p, []byte("\x1b]0;")) && bytes.HasSuffix(p, []byte("\x07")) {
		e.title = string(p[4 : len(p)-1])
	}
}

func (e *fakeEmulator) Title() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.title
}

func (e *fakeEmulator) Rows(width int) [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rows
}

func (e *fakeEmulator) Cursor() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor[0], e.cursor[1]
}

func (e *fakeEmulator) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resizes = append(e.resizes, [2]int{cols, rows})
}

func (e *fakeEmulator) fedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fed)
}

type rxCall struct {
	stream uint32
	data   []byte
}

type recordingCallback struct {
	mu    sync.Mutex
	rx    []rxCall
	infos []ShellInfo
}

func (cb *recordingCallback) Rx(stream uint32, data []byte) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rx = append(cb.rx, rxCall{stream: stream, data: append([]byte(nil), data...)})
}

func (cb *recordingCallback) Info(info ShellInfo) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.infos = append(cb.infos, info)
}

func (cb *recordingCallback) rxCalls() []rxCall {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]rxCall, len(cb.rx))
	copy(out, cb.rx)
	return out
}

func (cb *recordingCallback) infoCalls() []ShellInfo {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	out := make([]ShellInfo, len(cb.infos))
	copy(out, cb.infos)
	return out
}

func testToken() Token {
	return Token{ConnectionID: uuid.New(), ChannelID: "1"}
}

// startShell runs the protocol loop on its own goroutine and returns the
// shell plus a channel carrying the loop result.
func startShell(t *testing.T, ch Channel, cfg Config, cb Callback) (*Shell, <-chan error) {
	t.Helper()
	sh := New(testToken(), ch, cfg)
	result := make(chan error, 1)
	go func() {
		result <- sh.Run(cb)
	}()
	// Let the loop install the write queue before the test proceeds.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		sh.queueMu.Lock()
		installed := sh.queue != nil
		sh.queueMu.Unlock()
		if installed {
			break
		}
		time.Sleep(time.Millisecond)
	}
	return sh, result
}

func waitResult(t *testing.T, result <-chan error) error {
	t.Helper()
	select {
	case err := <-result:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("protocol loop did not terminate")
		return nil
	}
}

func assertRunning(t *testing.T, result <-chan error) {
	t.Helper()
	select {
	case err := <-result:
		t.Fatalf("protocol loop terminated early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunTerminatesOnStatusThenEOF(t *testing.T) {
	ch := newFakeChannel()
	_, result := startShell(t, ch, Config{}, &recordingCallback{})

	ch.msgs <- Message{Kind: MsgExitStatus, Status: 0}
	assertRunning(t, result)

	ch.msgs <- Message{Kind: MsgEOF}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("loop result = %v, want nil", err)
	}
}

func TestRunTerminatesOnEOFThenStatus(t *testing.T) {
	ch := newFakeChannel()
	_, result := startShell(t, ch, Config{}, &recordingCallback{})

	ch.msgs <- Message{Kind: MsgEOF}
	assertRunning(t, result)

	ch.msgs <- Message{Kind: MsgExitStatus, Status: 1}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("loop result = %v, want nil", err)
	}
}

func TestRunCloseMessageDoesNotTerminate(t *testing.T) {
	ch := newFakeChannel()
	_, result := startShell(t, ch, Config{}, &recordingCallback{})

	ch.msgs <- Message{Kind: MsgClose}
	ch.msgs <- Message{Kind: MsgEOF}
	assertRunning(t, result)

	ch.msgs <- Message{Kind: MsgExitStatus}
	if err := waitResult(t, result); err != nil {
		t.Fatalf("loop result = %v, want nil", err)
	}
}

func TestRunExitsWhenMessageStreamCloses(t *testing.T) {
	ch := newFakeChannel()
	_, result := startShell(t, ch, Config{}, &recordingCallback{})

	close(ch.msgs)
	if err := waitResult(t, result); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("loop result = %v, want ErrDisconnected", err)
	}
}

func TestRunForwardsWritesInOrder(t *testing.T) {
	ch := newFakeChannel()
	sh, result := startShell(t, ch, Config{}, &recordingCallback{})

	for _, s := range []string{"ls\n", "pwd\n", "exit\n"} {
		if err := sh.Write([]byte(s)); err != nil {
			t.Fatalf("Write(%q): %v", s, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for len(ch.sentData()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	sent := ch.sentData()
	want := []string{"ls\n", "pwd\n", "exit\n"}
	if len(sent) != len(want) {
		t.Fatalf("forwarded %d writes, want %d", len(sent), len(want))
	}
	for i, w := range want {
		if string(sent[i]) != w {
			t.Fatalf("write %d = %q, want %q", i, sent[i], w)
		}
	}

	ch.msgs <- Message{Kind: MsgEOF}
	ch.msgs <- Message{Kind: MsgExitStatus}
	waitResult(t, result)
}

func TestRunQueueClosureClosesChannel(t *testing.T) {
	ch := newFakeChannel()
	sh, result := startShell(t, ch, Config{}, &recordingCallback{})

	if err := sh.Write([]byte("final")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sh.CloseWrites()

	if err := waitResult(t, result); err != nil {
		t.Fatalf("loop result = %v, want nil", err)
	}
	if got := ch.closeCount(); got != 1 {
		t.Fatalf("channel closed %d times, want 1", got)
	}
	// The queued write is flushed before the close.
	sent := ch.sentData()
	if len(sent) != 1 || string(sent[0]) != "final" {
		t.Fatalf("flushed writes = %q, want [final]", sent)
	}
}

func TestRunSendErrorPropagates(t *testing.T) {
	ch := newFakeChannel()
	sendErr := errors.New("broken pipe")
	ch.mu.Lock()
	ch.sendErr = sendErr
	ch.mu.Unlock()

	sh, result := startShell(t, ch, Config{}, &recordingCallback{})
	if err := sh.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := waitResult(t, result); !errors.Is(err, sendErr) {
		t.Fatalf("loop result = %v, want %v", err, sendErr)
	}
}

func TestWriteBeforeRun(t *testing.T) {
	sh := New(testToken(), newFakeChannel(), Config{})
	if err := sh.Write([]byte("x")); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Write before Run = %v, want ErrDisconnected", err)
	}
}

func TestWriteAfterTeardown(t *testing.T) {
	ch := newFakeChannel()
	sh, result := startShell(t, ch, Config{}, &recordingCallback{})

	ch.msgs <- Message{Kind: MsgExitStatus}
	ch.msgs <- Message{Kind: MsgEOF}
	waitResult(t, result)

	if err := sh.Write([]byte("late")); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Write after teardown = %v, want ErrDisconnected", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	ch := newFakeChannel()
	sh := New(testToken(), ch, Config{})

	if err := sh.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sh.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := ch.closeCount(); got != 1 {
		t.Fatalf("channel closed %d times, want 1", got)
	}
}

func TestResizeUpdatesChannelAndEmulator(t *testing.T) {
	ch := newFakeChannel()
	emu := &fakeEmulator{}
	sh := New(testToken(), ch, Config{HasPTY: true, Emulator: emu})

	if err := sh.Resize(120, 40); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	ch.mu.Lock()
	windows := ch.windows
	ch.mu.Unlock()
	if len(windows) != 1 || windows[0] != [2]int{120, 40} {
		t.Fatalf("window changes = %v, want [[120 40]]", windows)
	}
	emu.mu.Lock()
	resizes := emu.resizes
	emu.mu.Unlock()
	if len(resizes) != 1 || resizes[0] != [2]int{120, 40} {
		t.Fatalf("emulator resizes = %v, want [[120 40]]", resizes)
	}
}

func TestResizeAfterClose(t *testing.T) {
	sh := New(testToken(), newFakeChannel(), Config{})
	sh.Close()
	if err := sh.Resize(80, 24); !errors.Is(err, ErrDisconnected) {
		t.Fatalf("Resize after Close = %v, want ErrDisconnected", err)
	}
}

func TestScreenTrimsTrailingEmptyRows(t *testing.T) {
	emu := &fakeEmulator{
		rows:   [][]byte{[]byte("abc"), {}, {}, {}},
		cursor: [2]int{0, 3},
	}
	sh := New(testToken(), newFakeChannel(), Config{HasPTY: true, Emulator: emu})

	buf, err := sh.Screen(80, 24)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(buf.Rows) != 1 || string(buf.Rows[0]) != "abc" {
		t.Fatalf("rows = %q, want [abc]", buf.Rows)
	}
	if buf.Cursor != [2]int{0, 3} {
		t.Fatalf("cursor = %v, want [0 3]", buf.Cursor)
	}
}

func TestScreenAllEmptyRows(t *testing.T) {
	emu := &fakeEmulator{rows: [][]byte{{}, {}, {}}}
	sh := New(testToken(), newFakeChannel(), Config{HasPTY: true, Emulator: emu})

	buf, err := sh.Screen(80, 24)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(buf.Rows) != 0 {
		t.Fatalf("rows = %q, want empty", buf.Rows)
	}
}

func TestScreenWithoutPTY(t *testing.T) {
	sh := New(testToken(), newFakeChannel(), Config{})
	buf, err := sh.Screen(80, 24)
	if err != nil {
		t.Fatalf("Screen: %v", err)
	}
	if len(buf.Rows) != 0 {
		t.Fatalf("rows = %q, want empty", buf.Rows)
	}
}

func TestRunDataNotifiesSink(t *testing.T) {
	ch := newFakeChannel()
	emu := &fakeEmulator{}
	cb := &recordingCallback{}
	_, result := startShell(t, ch, Config{HasPTY: true, Emulator: emu}, cb)

	ch.msgs <- Message{Kind: MsgData, Data: []byte("hi")}
	ch.msgs <- Message{Kind: MsgEOF}
	ch.msgs <- Message{Kind: MsgExitStatus}
	waitResult(t, result)

	rx := cb.rxCalls()
	if len(rx) != 1 || rx[0].stream != 0 || string(rx[0].data) != "hi" {
		t.Fatalf("rx calls = %+v, want one rx(0, hi)", rx)
	}
	if emu.fedCount() != 1 {
		t.Fatalf("emulator fed %d times, want 1", emu.fedCount())
	}
	if infos := cb.infoCalls(); len(infos) != 0 {
		t.Fatalf("info calls = %+v, want none without a title change", infos)
	}
}

func TestRunDataWithoutPTYSkipsEmulation(t *testing.T) {
	ch := newFakeChannel()
	cb := &recordingCallback{}
	_, result := startShell(t, ch, Config{}, cb)

	ch.msgs <- Message{Kind: MsgData, Data: []byte("raw")}
	ch.msgs <- Message{Kind: MsgEOF}
	ch.msgs <- Message{Kind: MsgExitStatus}
	waitResult(t, result)

	rx := cb.rxCalls()
	if len(rx) != 1 || rx[0].stream != 0 || string(rx[0].data) != "raw" {
		t.Fatalf("rx calls = %+v, want one rx(0, raw)", rx)
	}
}

func TestRunTitleChangeNotifies(t *testing.T) {
	ch := newFakeChannel()
	cb := &recordingCallback{}
	cfg := Config{
		HasPTY:       true,
		DefaultTitle: "shell",
		Emulator:     emulator.New(80, 24),
	}
	sh, result := startShell(t, ch, cfg, cb)

	if got := sh.Info().Title; got != "shell" {
		t.Fatalf("initial title = %q, want %q", got, "shell")
	}

	ch.msgs <- Message{Kind: MsgData, Data: []byte("\x1b]0;hello\x07")}
	ch.msgs <- Message{Kind: MsgEOF}
	ch.msgs <- Message{Kind: MsgExitStatus}
	waitResult(t, result)

	if got := sh.Info().Title; got != "hello" {
		t.Fatalf("title after OSC = %q, want %q", got, "hello")
	}
	if rx := cb.rxCalls(); len(rx) != 1 || rx[0].stream != 0 {
		t.Fatalf("rx calls = %+v, want exactly one rx(0, ...)", rx)
	}
	infos := cb.infoCalls()
	if len(infos) != 1 {
		t.Fatalf("info calls = %d, want 1", len(infos))
	}
	if infos[0].Title != "hello" {
		t.Fatalf("notified title = %q, want %q", infos[0].Title, "hello")
	}
}

func TestRunExtendedDataRouting(t *testing.T) {
	ch := newFakeChannel()
	emu := &fakeEmulator{}
	cb := &recordingCallback{}
	_, result := startShell(t, ch, Config{HasPTY: true, Emulator: emu}, cb)

	// Stream 2 must be ignored entirely; stream 1 is processed.
	ch.msgs <- Message{Kind: MsgExtendedData, Data: []byte("other"), Ext: 2}
	ch.msgs <- Message{Kind: MsgExtendedData, Data: []byte("err"), Ext: 1}
	ch.msgs <- Message{Kind: MsgEOF}
	ch.msgs <- Message{Kind: MsgExitStatus}
	waitResult(t, result)

	rx := cb.rxCalls()
	if len(rx) != 1 || rx[0].stream != 1 || string(rx[0].data) != "err" {
		t.Fatalf("rx calls = %+v, want one rx(1, err)", rx)
	}
	if emu.fedCount() != 1 {
		t.Fatalf("emulator fed %d times, want 1 (ext=2 must not feed)", emu.fedCount())
	}
}

func TestInfoFallsBackToDefaultTitle(t *testing.T) {
	emu := &fakeEmulator{}
	sh := New(testToken(), newFakeChannel(), Config{HasPTY: true, DefaultTitle: "webos", Emulator: emu})
	if got := sh.Info().Title; got != "webos" {
		t.Fatalf("title = %q, want default %q", got, "webos")
	}

	emu.mu.Lock()
	emu.title = "vi"
	emu.mu.Unlock()
	if got := sh.Info().Title; got != "vi" {
		t.Fatalf("title = %q, want emulator title %q", got, "vi")
	}
}

func TestInfoFields(t *testing.T) {
	token := testToken()
	sh := New(token, newFakeChannel(), Config{HasPTY: true, DefaultTitle: "shell", Emulator: &fakeEmulator{}})

	info := sh.Info()
	if info.Token != token {
		t.Fatalf("info token = %v, want %v", info.Token, token)
	}
	if !info.HasPTY {
		t.Fatal("info has_pty = false, want true")
	}
	if info.CreatedAt.IsZero() {
		t.Fatal("info created_at is zero")
	}
}
