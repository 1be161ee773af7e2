package shell

// MessageKind discriminates the channel messages the protocol loop consumes.
// The set mirrors what an SSH channel can deliver; kinds this package does
// not know about are ignored by the loop so new transport messages cannot
// break a running session.
type MessageKind int

const (
	// MsgData carries bytes from the remote side's primary output stream.
	MsgData MessageKind = iota
	// MsgExtendedData carries bytes from a secondary stream; Ext 1 is
	// conventionally stderr and is the only extended stream processed.
	MsgExtendedData
	// MsgExitStatus reports the remote command's exit code.
	MsgExitStatus
	// MsgEOF signals that the remote side will send no more data.
	MsgEOF
	// MsgClose signals that the remote side closed the channel.
	MsgClose
)

// Message is one event delivered by a Channel. Only the fields relevant to
// the Kind are set.
type Message struct {
	Kind   MessageKind
	Data   []byte
	Ext    uint32
	Status uint32
}

// Channel is the remote transport capability a Shell owns. Implementations
// (see internal/sshchannel) pump the underlying transport into the Messages
// stream and close it when the transport ends.
type Channel interface {
	// Messages returns the inbound message stream. The same channel is
	// returned on every call; it is closed when the transport closes.
	Messages() <-chan Message

	// Data sends bytes to the remote side's input.
	Data(p []byte) error

	// WindowChange informs the remote side of new terminal dimensions.
	// Pixel dimensions are not tracked and are always sent as zero.
	WindowChange(cols, rows int) error

	// Close closes the channel. Safe to call more than once.
	Close() error
}

// Callback is the notification sink the protocol loop drives. It is
// implemented by the caller (the UI-facing layer) and must not block: it is
// invoked on the loop's critical path, so implementations queue internally.
type Callback interface {
	// Rx is called whenever raw output arrives. Stream 0 is the primary
	// output stream, 1 the extended (stderr) stream.
	Rx(stream uint32, data []byte)

	// Info is called when session metadata (currently the title) changed.
	Info(info ShellInfo)
}
