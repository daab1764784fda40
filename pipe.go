package chunked

import (
	"context"
	"sync"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/sync/semaphore"
)

// BodyPipe is a bounded, single-producer/single-consumer byte pipe with
// pauseWriterThreshold = resumeWriterThreshold = 1: any unread byte pauses
// the writer, so at most one chunk payload is ever buffered in flight.
// This is the core's entire back-pressure mechanism (spec.md §3, §5) and
// is deliberately not "fixed" to a larger threshold: the pause/resume
// values of 1 are the back-pressure contract, not an oversight.
//
// The single permit of the writer's gate semaphore stands for "the
// segment slot is free". Write acquires it before making a new segment's
// bytes part of the pipe's state; Flush waits for the reader to fully
// drain that segment and then releases the permit, which is what wakes
// the next Write. A channel-of-one would give the same bound but not the
// context-aware Acquire that lets a cancellation unblock a pump waiting in
// Write without a second select arm.
type BodyPipe struct {
	pool *bytebufferpool.Pool
	gate *semaphore.Weighted

	mu            sync.Mutex
	cond          *sync.Cond
	cur           *bytebufferpool.ByteBuffer
	readOff       int
	completed     bool
	completionErr error
	readCanceled  bool
}

// NewBodyPipe constructs an empty pipe backed by pool for segment buffers.
func NewBodyPipe(pool *bytebufferpool.Pool) *BodyPipe {
	p := &BodyPipe{pool: pool, gate: semaphore.NewWeighted(1)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write acquires the single segment slot (blocking if the previous segment
// hasn't been fully drained by Flush's caller) and makes b the pipe's
// pending unread segment. b is copied; the caller may reuse its backing
// array immediately after Write returns.
func (p *BodyPipe) Write(ctx context.Context, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	p.mu.Lock()
	buf := p.pool.Get()
	buf.Write(b)
	p.cur = buf
	p.readOff = 0
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// Flush makes the bytes written by the prior Write observable to the
// reader and blocks until the reader has advanced past all of them (i.e.
// below resumeWriterThreshold=1), at which point the segment is released
// back to the pool and the writer's gate permit is released, unblocking
// the next Write. Flush returns immediately if there is nothing pending.
func (p *BodyPipe) Flush(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.cond.Broadcast)
	defer stop()

	p.mu.Lock()
	for p.cur != nil && p.readOff < len(p.cur.B) && !p.completed {
		if ctx.Err() != nil {
			p.mu.Unlock()
			return ctx.Err()
		}
		p.cond.Wait()
	}
	drained := p.cur != nil && p.readOff >= len(p.cur.B)
	if drained {
		p.pool.Put(p.cur)
		p.cur = nil
		p.readOff = 0
	}
	p.mu.Unlock()
	if drained {
		p.gate.Release(1)
	}
	return nil
}

// Read returns the next available segment of unread bytes, or suspends
// until the writer appends, completes, or the pending read is canceled.
// The returned slice is owned by the pipe until the next Advance or Reset
// and must not be retained past the caller's processing of it.
func (p *BodyPipe) Read(ctx context.Context) (data []byte, completed bool, err error) {
	stop := context.AfterFunc(ctx, p.cond.Broadcast)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.cur == nil || p.readOff >= len(p.cur.B) {
		if p.completed {
			return nil, true, p.completionErr
		}
		if p.readCanceled {
			p.readCanceled = false
			return nil, false, ErrReadCanceled
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		p.cond.Wait()
	}
	return p.cur.B[p.readOff:], false, nil
}

// TryRead is Read's non-blocking counterpart: it returns immediately with
// whatever is currently buffered, possibly empty.
func (p *BodyPipe) TryRead() (data []byte, completed bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cur != nil && p.readOff < len(p.cur.B) {
		return p.cur.B[p.readOff:], false, nil
	}
	if p.completed {
		return nil, true, p.completionErr
	}
	return nil, false, nil
}

// Advance releases bytes up to consumed from the current segment. examined
// is accepted for interface symmetry with ChunkParser's cursor contract;
// because BodyPipe ever holds at most one contiguous unread run, the
// distinction between consumed and examined collapses at this layer (it
// matters at the ChunkParser/Transport boundary, not here).
func (p *BodyPipe) Advance(consumed, examined int) {
	_ = examined
	p.mu.Lock()
	if p.cur != nil {
		p.readOff += consumed
		if p.readOff > len(p.cur.B) {
			p.readOff = len(p.cur.B)
		}
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Complete signals the writer's end. The first caller wins; subsequent
// calls are no-ops, matching the pump's "exactly once" completion
// guarantee (spec.md §4.3, §7).
func (p *BodyPipe) Complete(err error) {
	p.mu.Lock()
	if !p.completed {
		p.completed = true
		p.completionErr = err
		p.cond.Broadcast()
	}
	p.mu.Unlock()
}

// CancelPendingRead wakes a suspended Read with ErrReadCanceled rather than
// an error completion.
func (p *BodyPipe) CancelPendingRead() {
	p.mu.Lock()
	p.readCanceled = true
	p.cond.Broadcast()
	p.mu.Unlock()
}

// Reset returns the pipe to its pristine state. The caller must only call
// this after both the reader and the writer have completed (spec.md §5
// ordering guarantee #4); calling it earlier would race a still-active
// Read or Flush.
func (p *BodyPipe) Reset() {
	p.mu.Lock()
	if p.cur != nil {
		p.pool.Put(p.cur)
		p.cur = nil
	}
	p.readOff = 0
	p.completed = false
	p.completionErr = nil
	p.readCanceled = false
	p.mu.Unlock()
	p.gate = semaphore.NewWeighted(1)
}
