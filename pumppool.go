package chunked

import (
	"context"
	"sync"
	"time"
)

// PumpPool reuses pump goroutines across requests on a keep-alive
// connection instead of spawning a fresh one per request, adapted from
// the teacher's workerPool (workerpool.go): a FILO stack of idle channels
// so the most recently parked goroutine — hottest in the CPU cache — is
// handed the next job, with a background sweep that lets goroutines idle
// out past MaxIdle.
type PumpPool struct {
	MaxIdle time.Duration

	chanPool sync.Pool
	mu       sync.Mutex
	ready    pumpChanStack
	stopCh   chan struct{}
}

type pumpJob struct {
	pump *Pump
	ctx  context.Context
}

type pumpChan struct {
	next    *pumpChan
	ch      chan *pumpJob
	lastUse int64
}

type pumpChanStack struct{ head, tail *pumpChan }

func (s *pumpChanStack) push(c *pumpChan) {
	c.next = s.head
	s.head = c
	if s.tail == nil {
		s.tail = c
	}
}

func (s *pumpChanStack) pop() *pumpChan {
	head := s.head
	if head == nil {
		return nil
	}
	s.head = head.next
	if s.head == nil {
		s.tail = nil
	}
	return head
}

// NewPumpPool constructs a pool with the given idle-goroutine retirement
// window (10s, matching the teacher's workerPool default, if maxIdle<=0).
func NewPumpPool(maxIdle time.Duration) *PumpPool {
	if maxIdle <= 0 {
		maxIdle = 10 * time.Second
	}
	p := &PumpPool{MaxIdle: maxIdle, stopCh: make(chan struct{})}
	p.chanPool.New = func() any { return &pumpChan{ch: make(chan *pumpJob)} }
	go p.sweep()
	return p
}

// Stop retires every idle goroutine. In-flight pumps finish their current
// request and then exit instead of re-parking.
func (p *PumpPool) Stop() {
	close(p.stopCh)
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		c := p.ready.pop()
		if c == nil {
			return
		}
		close(c.ch)
	}
}

func (p *PumpPool) run(ctx context.Context, pu *Pump) {
	p.mu.Lock()
	c := p.ready.pop()
	p.mu.Unlock()
	if c == nil {
		vc := p.chanPool.Get()
		c = vc.(*pumpChan)
		go p.serve(c, vc)
	}
	c.ch <- &pumpJob{pump: pu, ctx: ctx}
}

func (p *PumpPool) serve(c *pumpChan, vc any) {
	for job := range c.ch {
		job.pump.run(job.ctx)
		c.lastUse = time.Now().UnixNano()

		select {
		case <-p.stopCh:
			p.chanPool.Put(vc)
			return
		default:
		}

		p.mu.Lock()
		p.ready.push(c)
		p.mu.Unlock()
	}
	// c.ch has been closed by sweep or Stop; it is not returned to
	// chanPool, since a later run would send on the closed channel.
}

func (p *PumpPool) sweep() {
	ticker := time.NewTicker(p.MaxIdle)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			critical := time.Now().Add(-p.MaxIdle).UnixNano()
			p.mu.Lock()
			// The stack runs from most to least recently used, so every
			// entry after the last fresh one has been idle past MaxIdle.
			var keep *pumpChan
			cur := p.ready.head
			for cur != nil && cur.lastUse >= critical {
				keep, cur = cur, cur.next
			}
			if keep == nil {
				p.ready.head, p.ready.tail = nil, nil
			} else {
				keep.next, p.ready.tail = nil, keep
			}
			for ; cur != nil; cur = cur.next {
				close(cur.ch)
			}
			p.mu.Unlock()
		}
	}
}
