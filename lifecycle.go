package chunked

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

// ConnectionContext is the collaborator spec.md §6 names: the bits of the
// outer connection the Lifecycle needs to decide keep-alive and to flag a
// bad request, named only at their interface per §1's scope boundary.
type ConnectionContext interface {
	KeepAlive() bool
	SetBadRequestState(err error)
	Logger() Logger
}

// Decoder is constructed once per request and orchestrates Start, Stop,
// and Consume (drain) as described in spec.md §4.5. Pump exclusively
// writes the BodyPipe; BodyReader exclusively reads it; both share the
// parser state through the Pump.
type Decoder struct {
	TraceID uuid.UUID

	conn ConnectionContext
	pipe *BodyPipe
	pump *Pump
	rdr  *BodyReader

	everRead bool
}

// NewDecoder wires a parser/pipe/pump/reader quartet for one request.
// pool backs both the body's memory (pipe segments, pump scratch buffer)
// and is typically the connection's shared bytebufferpool.Pool.
func NewDecoder(conn ConnectionContext, transport Transport, maxBodySize int64, trailer TrailerParser, timeouts TimeoutController, pool *bytebufferpool.Pool, goroutines *PumpPool) *Decoder {
	parser := NewChunkParser(maxBodySize, trailer)
	pipe := NewBodyPipe(pool)
	pump := NewPump(transport, parser, pipe, timeouts, pool)
	pump.Logger = conn.Logger()
	pump.TraceID = uuid.New()
	pump.GoroutinePool = goroutines

	return &Decoder{
		TraceID: pump.TraceID,
		conn:    conn,
		pipe:    pipe,
		pump:    pump,
		rdr:     NewBodyReader(pipe, pump, timeouts),
	}
}

// Reader returns the BodyReader handlers should use; using it marks the
// body as having been read once the first operation is invoked.
func (d *Decoder) Reader() *BodyReader {
	d.everRead = true
	return d.rdr
}

// Stop is called by the outer request loop at request end (spec.md
// §4.5). If the body was never read, it is a no-op. Otherwise it
// completes the reader side and, depending on whether the pump has
// already terminated, either resets immediately or cancels the pump and
// waits for it before resetting.
func (d *Decoder) Stop() error {
	if !d.everRead || !d.pump.started.Load() {
		return nil
	}
	d.rdr.Complete(nil)

	select {
	case <-d.pump.Done():
		d.pipe.Reset()
		return nil
	default:
	}

	d.pump.Cancel()
	<-d.pump.Done()
	d.pipe.Reset()
	return nil
}

// Consume drains any body the handler didn't fully read so the connection
// can be kept alive (spec.md §4.5). It first tries a non-blocking drain;
// only if that doesn't finish the body does it install a bounded drain
// timeout and read-and-discard in a loop. Preserving that shortcut
// exactly is a deliberate latency optimization (spec.md §9): most
// handlers that ignore the body already have it fully buffered by the
// time they return.
func (d *Decoder) Consume(ctx context.Context, drainTimeout time.Duration) error {
	d.everRead = true

	data, completed, err := d.rdr.TryRead(ctx)
	if len(data) > 0 {
		d.rdr.Advance(len(data))
	}
	if completed {
		return d.classifyDrainErr(err)
	}

	if drainTimeout <= 0 {
		drainTimeout = DefaultDrainTimeout
	}
	drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
	defer cancel()

	for {
		data, completed, err := d.rdr.ReadAsync(drainCtx)
		if len(data) > 0 {
			d.rdr.Advance(len(data))
		}
		if completed {
			return d.classifyDrainErr(err)
		}
		if err != nil {
			if drainCtx.Err() != nil {
				if d.conn.Logger() != nil {
					d.conn.Logger().Printf("drain timeout on request %s", d.TraceID)
				}
				return nil
			}
			return d.classifyDrainErr(err)
		}
	}
}

func (d *Decoder) classifyDrainErr(err error) error {
	if err == nil {
		return nil
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case KindBadChunkSizeData, KindBadChunkSuffix, KindUnexpectedEndOfRequestContent:
			d.conn.SetBadRequestState(err)
		}
	}
	return err
}
