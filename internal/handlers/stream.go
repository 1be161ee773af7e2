package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/coder/websocket"
)

// maxInputMessageSize bounds a single WebSocket input frame.
const maxInputMessageSize = 64 * 1024

// streamControlMsg is an inbound text frame on the stream socket.
type streamControlMsg struct {
	Type string `json:"type"`
	Cols int    `json:"cols"`
	Rows int    `json:"rows"`
}

// streamInfoMsg is the outbound text frame sent on metadata change.
type streamInfoMsg struct {
	Type string      `json:"type"`
	Info interface{} `json:"info"`
}

// ShellStream attaches a WebSocket to a session's notification stream.
//
// Outbound frames: binary frames carry one stream-id byte (0 primary,
// 1 stderr) followed by raw output; text frames carry info JSON on metadata
// change. Inbound frames: binary frames are written to the session, text
// frames carry resize/close control JSON. The socket closes when the
// session's protocol loop exits.
func ShellStream(w http.ResponseWriter, r *http.Request) {
	token, ok := parseTokenParam(w, r)
	if !ok {
		return
	}
	sh, ok := lookupShell(w, token)
	if !ok {
		return
	}
	entry, ok := streams.get(token)
	if !ok {
		writeError(w, http.StatusNotFound, "Session stream not found")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[handlers] accept stream websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(r.Context())
	defer relayCancel()

	// Sink events -> socket
	go func() {
		defer relayCancel()
		for {
			select {
			case <-relayCtx.Done():
				return
			case <-entry.done:
				return
			case ev := <-entry.sink.events:
				switch ev.kind {
				case eventRx:
					frame := make([]byte, 1+len(ev.data))
					frame[0] = byte(ev.stream)
					copy(frame[1:], ev.data)
					if err := conn.Write(relayCtx, websocket.MessageBinary, frame); err != nil {
						return
					}
				case eventInfo:
					payload, err := json.Marshal(streamInfoMsg{Type: "info", Info: ev.info})
					if err != nil {
						continue
					}
					if err := conn.Write(relayCtx, websocket.MessageText, payload); err != nil {
						return
					}
				}
			}
		}
	}()

	// Socket -> session input and control
	for {
		msgType, data, err := conn.Read(relayCtx)
		if err != nil {
			break
		}

		if msgType == websocket.MessageBinary {
			if len(data) > maxInputMessageSize {
				log.Printf("[handlers] stream input too large: session=%s size=%d", token, len(data))
				continue
			}
			if err := sh.Write(data); err != nil {
				break
			}
			continue
		}

		var msg streamControlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				if err := sh.Resize(msg.Cols, msg.Rows); err != nil {
					log.Printf("[handlers] resize session %s: %v", token, err)
				}
			}
		case "close":
			if err := sh.Close(); err != nil {
				log.Printf("[handlers] close session %s: %v", token, err)
			}
		}
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
