// Package shell implements the per-session actor at the heart of shellmux.
//
// A Shell owns exactly one remote channel (a PTY-backed command channel on a
// multiplexed SSH connection), one outbound write queue, and one terminal
// emulator. Its protocol loop (Run) reconciles three concurrent event
// sources: locally queued writes, remote channel messages, and control calls
// made from other goroutines (Write, Resize, Screen, Close, Info).
//
// The channel handle, the write queue, and the emulator are guarded by
// separate locks so that a Screen read never contends with an in-flight
// Resize or Write. The price is that the two effects of Resize (the
// window-change request on the channel and the emulator resize) are not
// atomic with each other or with Close; a Close racing a Resize can leave
// the emulator resized while the window-change request is never delivered.
// That tradeoff is intentional and must not be "fixed" with a coarse lock.
package shell
