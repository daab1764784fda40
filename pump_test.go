package chunked

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valyala/bytebufferpool"
)

// fakeTransport feeds a fixed byte stream to the Pump in caller-controlled
// slices, mimicking a Transport over a connection whose data arrives in
// pieces. Every method holds mu, so CancelPendingRead may be called from
// another goroutine while the Pump is reading.
type fakeTransport struct {
	mu         sync.Mutex
	data       []byte
	feedSizes  []int
	pos        int
	feedIdx    int
	firstCall  bool
	asyncFirst bool // if true, the very first ReadAsync reports sync=false
	canceled   chan struct{}
	completed  bool
}

func newFakeTransport(data []byte, feedSizes ...int) *fakeTransport {
	return &fakeTransport{data: data, feedSizes: feedSizes, firstCall: true, canceled: make(chan struct{})}
}

// newFakeTransportAsyncFirst is like newFakeTransport but its first
// ReadAsync call reports sync=false, as a transport would when the first
// body read has to block on the network (the scenario that should make the
// Pump's 100-Continue signal fire).
func newFakeTransportAsyncFirst(data []byte, feedSizes ...int) *fakeTransport {
	f := newFakeTransport(data, feedSizes...)
	f.asyncFirst = true
	return f
}

func (f *fakeTransport) ReadAsync(ctx context.Context) (buf []byte, sync bool, eof bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	select {
	case <-f.canceled:
		return nil, true, false, ErrConnectionAborted
	default:
	}

	wasFirst := f.firstCall
	f.firstCall = false
	sync = !(wasFirst && f.asyncFirst)

	end := len(f.data)
	if f.feedIdx < len(f.feedSizes) {
		want := f.pos + f.feedSizes[f.feedIdx]
		if want < end {
			end = want
		}
		f.feedIdx++
	}

	eof = end >= len(f.data)
	return f.data[f.pos:end], sync, eof, nil
}

func (f *fakeTransport) AdvanceTo(consumed, examined int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos += consumed
}

func (f *fakeTransport) CancelPendingRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.canceled:
	default:
		close(f.canceled)
	}
}

func (f *fakeTransport) OnInputOrOutputCompleted() {
	f.mu.Lock()
	f.completed = true
	f.mu.Unlock()
}

func drainPump(t *testing.T, pipe *BodyPipe) []byte {
	t.Helper()
	var out []byte
	ctx := context.Background()
	for {
		data, completed, err := pipe.Read(ctx)
		if len(data) > 0 {
			out = append(out, data...)
			pipe.Advance(len(data), len(data))
		}
		if completed {
			if err != nil {
				t.Fatalf("pipe completed with error: %v", err)
			}
			return out
		}
	}
}

func TestPump_FullBody(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	transport := newFakeTransport([]byte("5\r\nHello\r\n0\r\n\r\n"), 3, 5, 100)
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	pump.Start(context.Background())
	body := drainPump(t, pipe)
	<-pump.Done()

	if string(body) != "Hello" {
		t.Fatalf("body = %q, want %q", body, "Hello")
	}
}

func TestPump_StartIsIdempotent(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	transport := newFakeTransport([]byte("0\r\n\r\n"))
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	pump.Start(context.Background())
	pump.Start(context.Background())
	pump.Start(context.Background())

	drainPump(t, pipe)
	<-pump.Done()
}

func TestPump_OnContinueFiresWhenFirstReadIsAsync(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	transport := newFakeTransportAsyncFirst([]byte("0\r\n\r\n"), 2, 100)
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	var calls int
	var mu sync.Mutex
	pump.OnContinue = func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	pump.Start(context.Background())
	drainPump(t, pipe)
	<-pump.Done()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("OnContinue called %d times, want 1", calls)
	}
}

func TestPump_OnContinueDoesNotFireWhenFirstReadIsSync(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	// Every byte is already buffered (fed in one shot): the first read is
	// synchronous, so OnContinue must never fire, even though later reads
	// in the loop (once the parser reaches Complete, there are none) could
	// otherwise be mistaken for the first.
	transport := newFakeTransport([]byte("0\r\n\r\n"))
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	var calls int
	var mu sync.Mutex
	pump.OnContinue = func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	pump.Start(context.Background())
	drainPump(t, pipe)
	<-pump.Done()

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Fatalf("OnContinue called %d times, want 0", calls)
	}
}

func TestPump_PrematureEndRaisesUnexpectedEOF(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	// Transport reports EOF mid chunk-data, before the parser reaches Complete.
	transport := newFakeTransport([]byte("5\r\nHel"))
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	pump.Start(context.Background())

	ctx := context.Background()
	var gotErr error
	for {
		data, completed, err := pipe.Read(ctx)
		if len(data) > 0 {
			pipe.Advance(len(data), len(data))
		}
		if completed {
			gotErr = err
			break
		}
	}
	<-pump.Done()

	var pe *ParseError
	if !errors.As(gotErr, &pe) || pe.Kind != KindUnexpectedEndOfRequestContent {
		t.Fatalf("got %v, want UnexpectedEndOfRequestContent", gotErr)
	}
	if !transport.completed {
		t.Fatal("transport.OnInputOrOutputCompleted was not called")
	}
}

func TestPump_CancelStopsTheLoop(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	transport := newFakeTransport([]byte("5\r\nHello\r\n0\r\n\r\n"), 1)
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	pump.Start(context.Background())
	pump.Cancel()

	select {
	case <-pump.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop after Cancel")
	}
}

func TestPump_TimeoutStopsTheLoop(t *testing.T) {
	pool := &bytebufferpool.Pool{}
	transport := newFakeTransport([]byte("5\r\nHello\r\n0\r\n\r\n"), 1)
	parser := NewChunkParser(0, nil)
	pipe := NewBodyPipe(pool)
	timeouts := NewSimpleTimeoutController(nil)
	timeouts.timedOut = true
	pump := NewPump(transport, parser, pipe, timeouts, pool)

	pump.Start(context.Background())

	select {
	case <-pump.Done():
	case <-time.After(time.Second):
		t.Fatal("pump did not stop once RequestTimedOut() was true")
	}

	_, completed, err := pipe.Read(context.Background())
	if !completed {
		t.Fatal("pipe should have completed")
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Kind != KindRequestBodyTimeout {
		t.Fatalf("got %v, want RequestBodyTimeout", err)
	}
}
