package chunked

import "context"

// BodyReader is the public read surface application handlers use. It
// wraps a BodyPipe and the request's TimeoutController, and is
// responsible for starting the Pump lazily on first use (spec.md §4.4).
//
// CancelPendingRead and OnWriterCompleted are declared for interface
// parity with richer pipe-reader surfaces but are intentionally
// unsupported here (spec.md §9): callers that invoke them get an explicit
// ErrNotSupported rather than a silent no-op.
type BodyReader struct {
	pipe     *BodyPipe
	pump     *Pump
	timeouts TimeoutController

	readerCompleted   bool
	readerCompleteErr error
}

// NewBodyReader constructs a reader over pipe, lazily starting pump on
// first use.
func NewBodyReader(pipe *BodyPipe, pump *Pump, timeouts TimeoutController) *BodyReader {
	return &BodyReader{pipe: pipe, pump: pump, timeouts: timeouts}
}

// TryRead starts the pump if needed and returns a non-blocking snapshot of
// currently buffered bytes, possibly empty, with IsCompleted set once the
// body has ended.
func (r *BodyReader) TryRead(ctx context.Context) (data []byte, isCompleted bool, err error) {
	r.pump.Start(ctx)
	return r.pipe.TryRead()
}

// ReadAsync starts the pump if needed and blocks until at least one byte
// is available or the pipe completes. While suspended it opens a
// back-pressure timing window on the TimeoutController and reports the
// byte delta once data arrives.
func (r *BodyReader) ReadAsync(ctx context.Context) (data []byte, isCompleted bool, err error) {
	r.pump.Start(ctx)

	data, isCompleted, err = r.pipe.TryRead()
	if len(data) > 0 || isCompleted || err != nil {
		return data, isCompleted, err
	}

	r.timeouts.StartTimingRead()
	data, isCompleted, err = r.pipe.Read(ctx)
	r.timeouts.StopTimingRead()

	if len(data) > 0 {
		r.timeouts.BytesRead(len(data))
	}
	return data, isCompleted, err
}

// Advance releases consumed bytes and reports the number released to the
// TimeoutController's data-read callback. examined is passed on to
// BodyPipe.Advance, which ignores it.
func (r *BodyReader) Advance(consumed int, examined ...int) {
	ex := consumed
	if len(examined) > 0 {
		ex = examined[0]
	}
	r.pipe.Advance(consumed, ex)
	if consumed > 0 {
		r.timeouts.BytesRead(consumed)
	}
}

// Complete completes the reader side. It does not stop the pump: the
// pump's own writer-side completion ends its loop naturally once the body
// is drained (spec.md §4.4).
func (r *BodyReader) Complete(err error) {
	r.readerCompleted = true
	r.readerCompleteErr = err
}

// Completed reports whether Complete has been called, and with what
// error.
func (r *BodyReader) Completed() (completed bool, err error) {
	return r.readerCompleted, r.readerCompleteErr
}

// CancelPendingRead is declared for interface parity and intentionally
// unsupported.
func (r *BodyReader) CancelPendingRead() error { return ErrNotSupported }

// OnWriterCompleted is declared for interface parity and intentionally
// unsupported.
func (r *BodyReader) OnWriterCompleted(func(error)) error { return ErrNotSupported }
