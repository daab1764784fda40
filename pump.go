package chunked

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

// Logger matches the teacher's own minimal logging surface (server.go's
// Logger interface): a single Printf method, no external logging
// dependency. The pack never reaches for zerolog/logrus/zap for this
// concern, so neither does this package.
type Logger interface {
	Printf(format string, args ...interface{})
}

// Pump is the long-lived task launched at first read: it drives a
// Transport through a ChunkParser and writes recognized payload bytes to
// a BodyPipe, observing cancellation and the request deadline along the
// way (spec.md §4.3).
type Pump struct {
	Transport  Transport
	Parser     *ChunkParser
	Pipe       *BodyPipe
	Timeouts   TimeoutController
	Pool       *bytebufferpool.Pool
	Logger     Logger
	TraceID    uuid.UUID
	OnContinue func()

	// GoroutinePool, if set, runs this pump's loop on a reused goroutine
	// instead of spawning a fresh one (see pumppool.go).
	GoroutinePool *PumpPool

	canceled atomic.Bool
	started  atomic.Bool
	done     chan struct{}
}

// NewPump wires the collaborators for a single request. Pool must not be
// nil; the other collaborators should use sensible concrete
// implementations (ConnTransport, SimpleTimeoutController) unless a test
// supplies fakes.
func NewPump(transport Transport, parser *ChunkParser, pipe *BodyPipe, timeouts TimeoutController, pool *bytebufferpool.Pool) *Pump {
	return &Pump{
		Transport: transport,
		Parser:    parser,
		Pipe:      pipe,
		Timeouts:  timeouts,
		Pool:      pool,
		done:      make(chan struct{}),
	}
}

// Start launches the pump exactly once; subsequent calls are no-ops.
func (pu *Pump) Start(ctx context.Context) {
	if !pu.started.CompareAndSwap(false, true) {
		return
	}
	if pu.GoroutinePool != nil {
		pu.GoroutinePool.run(ctx, pu)
		return
	}
	go pu.run(ctx)
}

// Cancel is Lifecycle's hook to request pump shutdown; it is observed at
// the next loop-iteration boundary, with the transport's own cancellation
// as the authoritative wake (spec.md §5).
func (pu *Pump) Cancel() {
	pu.canceled.Store(true)
	pu.Transport.CancelPendingRead()
}

// Done reports when the pump goroutine has exited and completed the pipe.
func (pu *Pump) Done() <-chan struct{} { return pu.done }

func (pu *Pump) run(ctx context.Context) {
	defer close(pu.done)

	sink := pu.Pool.Get()
	defer pu.Pool.Put(sink)

	var runErr error
	firstIteration := true

	for {
		buf, sync0, eof, err := pu.Transport.ReadAsync(ctx)
		if firstIteration && !sync0 && pu.OnContinue != nil {
			pu.OnContinue()
		}
		firstIteration = false
		if err != nil {
			runErr = err
			break
		}

		if pu.Timeouts.RequestTimedOut() {
			runErr = newParseError(KindRequestBodyTimeout, "pump", nil)
			break
		}
		if pu.canceled.Load() {
			break
		}

		sink.Reset()
		var consumed, examined int
		done := false
		if len(buf) > 0 {
			res, perr := pu.Parser.Parse(buf, sink)
			consumed, examined = res.Consumed, res.Examined
			done = res.Done
			if perr != nil {
				pu.Transport.AdvanceTo(consumed, examined)
				runErr = perr
				break
			}
		}

		if sink.Len() > 0 {
			if werr := pu.Pipe.Write(ctx, sink.B); werr != nil {
				pu.Transport.AdvanceTo(consumed, examined)
				runErr = werr
				break
			}
			if ferr := pu.Pipe.Flush(ctx); ferr != nil {
				pu.Transport.AdvanceTo(consumed, examined)
				runErr = ferr
				break
			}
		}

		if done {
			pu.Transport.AdvanceTo(consumed, examined)
			break
		}

		if eof {
			pu.Transport.OnInputOrOutputCompleted()
			pu.Transport.AdvanceTo(consumed, examined)
			runErr = newParseError(KindUnexpectedEndOfRequestContent, "pump",
				nil)
			break
		}

		pu.Transport.AdvanceTo(consumed, examined)
	}

	pu.Pipe.Complete(runErr)
}
