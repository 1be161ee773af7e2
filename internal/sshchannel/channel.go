// Package sshchannel adapts an SSH session on a multiplexed client
// connection to the message-stream channel the shell actor consumes.
//
// It wraps golang.org/x/crypto/ssh: stdout becomes Data messages, stderr
// becomes ExtendedData messages on stream 1, and the session's exit becomes
// an ExitStatus message followed by EOF. The message stream is closed when
// the transport ends, which is how a running protocol loop observes
// disconnection.
package sshchannel

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/lunadev/shellmux/internal/shell"
)

// readBufferSize is the chunk size for the stdout/stderr relay reads.
const readBufferSize = 32 * 1024

// messageBacklog is the capacity of the inbound message stream. The pumps
// block once it fills, which backpressures the SSH connection instead of
// buffering without bound.
const messageBacklog = 32

// OpenOptions controls how the remote session is started.
type OpenOptions struct {
	// PTY requests a pseudo-terminal before starting the command.
	PTY bool
	// Term is the TERM value sent with the PTY request. Defaults to
	// "xterm-256color".
	Term string
	// Cols and Rows are the initial PTY dimensions. Default 80x24.
	Cols int
	Rows int
	// Command is the remote command to run. Empty starts a login shell.
	Command string
}

// Channel is a shell.Channel backed by an *ssh.Session.
type Channel struct {
	session *ssh.Session
	stdin   io.WriteCloser
	msgs    chan shell.Message

	// done unblocks the relay pumps when the channel is closed while the
	// consumer has stopped draining messages.
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open starts a remote session on client and wraps it as a Channel. With
// opts.PTY set it requests a PTY first, the way an interactive shell would
// be started; without it the command runs pipe-backed and no emulation is
// possible on the caller side.
func Open(client *ssh.Client, opts OpenOptions) (*Channel, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open ssh session: %w", err)
	}

	if opts.PTY {
		term := opts.Term
		if term == "" {
			term = "xterm-256color"
		}
		cols, rows := opts.Cols, opts.Rows
		if cols <= 0 {
			cols = 80
		}
		if rows <= 0 {
			rows = 24
		}
		modes := ssh.TerminalModes{
			ssh.ECHO:          1,
			ssh.TTY_OP_ISPEED: 14400,
			ssh.TTY_OP_OSPEED: 14400,
		}
		if err := session.RequestPty(term, rows, cols, modes); err != nil {
			session.Close()
			return nil, fmt.Errorf("request pty: %w", err)
		}
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if opts.Command == "" {
		err = session.Shell()
	} else {
		err = session.Start(opts.Command)
	}
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("start remote command: %w", err)
	}

	c := &Channel{
		session: session,
		stdin:   stdin,
		msgs:    make(chan shell.Message, messageBacklog),
		done:    make(chan struct{}),
	}
	go c.pump(stdout, stderr)
	return c, nil
}

// Messages returns the inbound message stream. It is closed after the
// session ends and the final ExitStatus/EOF messages have been delivered.
func (c *Channel) Messages() <-chan shell.Message {
	return c.msgs
}

// Data sends bytes to the remote side's input.
func (c *Channel) Data(p []byte) error {
	if _, err := c.stdin.Write(p); err != nil {
		return fmt.Errorf("channel write: %w", err)
	}
	return nil
}

// WindowChange informs the remote side of new terminal dimensions. Pixel
// dimensions are not tracked.
func (c *Channel) WindowChange(cols, rows int) error {
	if err := c.session.WindowChange(rows, cols); err != nil {
		return fmt.Errorf("window change: %w", err)
	}
	return nil
}

// Close closes the underlying session. Safe to call more than once; later
// calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		err := c.session.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// pump relays stdout and stderr into the message stream, then converts the
// session's exit into ExitStatus and EOF messages and closes the stream.
func (c *Channel) pump(stdout, stderr io.Reader) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.relay(stdout, func(data []byte) shell.Message {
			return shell.Message{Kind: shell.MsgData, Data: data}
		})
	}()
	go func() {
		defer wg.Done()
		c.relay(stderr, func(data []byte) shell.Message {
			return shell.Message{Kind: shell.MsgExtendedData, Data: data, Ext: 1}
		})
	}()
	wg.Wait()

	status, haveStatus := waitStatus(c.session)
	if haveStatus {
		c.deliver(shell.Message{Kind: shell.MsgExitStatus, Status: status})
	}
	c.deliver(shell.Message{Kind: shell.MsgEOF})
	close(c.msgs)
}

// relay reads a stream until it ends, wrapping each chunk with wrap and
// delivering it in order.
func (c *Channel) relay(r io.Reader, wrap func([]byte) shell.Message) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !c.deliver(wrap(data)) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// deliver sends a message unless the channel has been closed and the
// consumer is gone. Reports whether the message was accepted.
func (c *Channel) deliver(msg shell.Message) bool {
	select {
	case c.msgs <- msg:
		return true
	case <-c.done:
		return false
	}
}

// waitStatus waits for the remote command to finish and extracts its exit
// status. A session that ends without reporting a status (for example when
// the remote side was killed by a signal or the connection dropped) yields
// haveStatus=false, leaving loop termination to the closed message stream.
func waitStatus(session *ssh.Session) (status uint32, haveStatus bool) {
	err := session.Wait()
	if err == nil {
		return 0, true
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return uint32(exitErr.ExitStatus()), true
	}
	return 0, false
}
