package chunked

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Transport is the read-side collaborator the Pump drives. It is named
// only at its interface per spec.md §1/§6: the outer HTTP/1 connection
// loop, TLS, and scheduling live entirely outside this package.
type Transport interface {
	// ReadAsync returns the bytes currently available starting at the
	// position left by the last AdvanceTo call. sync reports whether the
	// data was already buffered (true) or required an actual blocking
	// read on the connection (false); the Pump uses a false sync on the
	// first call to fire the 100-Continue signal. eof reports that no
	// more bytes will ever arrive.
	ReadAsync(ctx context.Context) (buf []byte, sync bool, eof bool, err error)
	// AdvanceTo releases bytes up to consumed and records examined so
	// ReadAsync won't wake again for the same data.
	AdvanceTo(consumed, examined int)
	// CancelPendingRead aborts an in-flight ReadAsync.
	CancelPendingRead()
	// OnInputOrOutputCompleted notifies the connection that the body
	// terminated (normally or abnormally) so it can decide on
	// keep-alive.
	OnInputOrOutputCompleted()
}

// ConnTransport adapts a *bufio.Reader over a net.Conn to the Transport
// interface. It is grounded on the teacher's own bufio.Reader idioms:
// proxy/chunked.go's chunkHeaderAvailable peeks Buffered() bytes to decide
// whether a chunk header is already available without blocking, which is
// exactly the synchronous-completion check ReadAsync needs to decide
// whether to fire 100-Continue.
type ConnTransport struct {
	conn net.Conn
	br   *bufio.Reader

	examined  int // bytes, relative to the unconsumed window, already inspected
	canceled  chan struct{}
	completed bool
}

// NewConnTransport wraps conn's read side. br may be nil, in which case a
// new buffered reader is allocated over conn.
func NewConnTransport(conn net.Conn, br *bufio.Reader) *ConnTransport {
	if br == nil {
		br = bufio.NewReader(conn)
	}
	return &ConnTransport{conn: conn, br: br, canceled: make(chan struct{})}
}

func (t *ConnTransport) ReadAsync(ctx context.Context) (buf []byte, sync bool, eof bool, err error) {
	if n := t.br.Buffered(); n > t.examined {
		peeked, _ := t.br.Peek(n)
		return peeked, true, false, nil
	}

	select {
	case <-t.canceled:
		return nil, true, false, ErrConnectionAborted
	default:
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(dl)
		defer t.conn.SetReadDeadline(time.Time{})
	}

	// Force an actual Read by peeking one byte past what we've already
	// examined; bufio.Reader blocks on the underlying connection to
	// satisfy this.
	_, perr := t.br.Peek(t.examined + 1)
	n := t.br.Buffered()
	peeked, _ := t.br.Peek(n)
	if perr != nil {
		if errors.Is(perr, io.EOF) {
			return peeked, false, true, nil
		}
		var netErr net.Error
		if errors.As(perr, &netErr) && netErr.Timeout() {
			return peeked, false, false, newParseError(KindRequestBodyTimeout, "readAsync", perr)
		}
		return peeked, false, false, newParseError(KindConnectionAborted, "readAsync", perr)
	}
	return peeked, false, false, nil
}

func (t *ConnTransport) AdvanceTo(consumed, examined int) {
	if consumed > 0 {
		t.br.Discard(consumed)
	}
	rem := examined - consumed
	if rem < 0 {
		rem = 0
	}
	t.examined = rem
}

func (t *ConnTransport) CancelPendingRead() {
	select {
	case <-t.canceled:
	default:
		close(t.canceled)
	}
	// SetReadDeadline may be called concurrently with an in-flight Read
	// per net.Conn's contract; this is what actually unblocks a pump
	// goroutine stuck in ReadAsync's blocking Peek.
	_ = t.conn.SetReadDeadline(time.Now())
}

func (t *ConnTransport) OnInputOrOutputCompleted() {
	t.completed = true
}
