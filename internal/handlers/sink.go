package handlers

import (
	"log"
	"sync"

	"github.com/lunadev/shellmux/internal/shell"
)

// streamBacklog is how many sink events are buffered while no WebSocket is
// draining them. The protocol loop must never block on a slow or absent UI,
// so events beyond the backlog are dropped; the client can always recover
// the current screen via the snapshot endpoint.
const streamBacklog = 256

type eventKind int

const (
	eventRx eventKind = iota
	eventInfo
)

// streamEvent is one notification-sink invocation, queued for the WebSocket
// writer.
type streamEvent struct {
	kind   eventKind
	stream uint32
	data   []byte
	info   shell.ShellInfo
}

// streamSink implements shell.Callback for one session. It queues events
// internally so the protocol loop never blocks on delivery.
type streamSink struct {
	events  chan streamEvent
	dropped int
	mu      sync.Mutex
}

func newStreamSink() *streamSink {
	return &streamSink{events: make(chan streamEvent, streamBacklog)}
}

func (s *streamSink) Rx(stream uint32, data []byte) {
	s.emit(streamEvent{kind: eventRx, stream: stream, data: data})
}

func (s *streamSink) Info(info shell.ShellInfo) {
	s.emit(streamEvent{kind: eventInfo, info: info})
}

func (s *streamSink) emit(ev streamEvent) {
	select {
	case s.events <- ev:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		if n == 1 || n%100 == 0 {
			log.Printf("[handlers] stream backlog full, dropped %d events", n)
		}
	}
}

// streamTable maps live session tokens to their sinks and loop-done
// signals, so the stream endpoint can attach to a session opened earlier.
type streamTable struct {
	mu      sync.Mutex
	entries map[shell.Token]*streamEntry
}

type streamEntry struct {
	sink *streamSink
	done <-chan struct{}
}

func newStreamTable() *streamTable {
	return &streamTable{entries: make(map[shell.Token]*streamEntry)}
}

func (t *streamTable) put(token shell.Token, e *streamEntry) {
	t.mu.Lock()
	t.entries[token] = e
	t.mu.Unlock()

	// Drop the entry once the protocol loop has exited.
	go func() {
		<-e.done
		t.mu.Lock()
		delete(t.entries, token)
		t.mu.Unlock()
	}()
}

func (t *streamTable) get(token shell.Token) (*streamEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[token]
	return e, ok
}
