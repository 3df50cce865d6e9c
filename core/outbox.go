package core

import (
	"slices"
	"sync"
)

type outFrame struct {
	data []byte
	// droppable frames (loc, stale presence) may be evicted under
	// backpressure; chat, join-ack and leave frames may not.
	droppable bool
}

// outbox is the bounded per-connection outbound queue. A slow recipient must
// never block delivery to other recipients, so push never blocks: when the
// queue is full the oldest droppable frame is evicted to make room. If no
// frame is droppable, a droppable push is discarded and a critical push
// fails with ErrOutboxOverflow, which forces the connection closed.
type outbox struct {
	mu     sync.Mutex
	frames []outFrame
	limit  int
	closed bool
	// wake has capacity 1; the write loop drains the queue on each signal.
	wake chan struct{}
}

func newOutbox(limit int) *outbox {
	return &outbox{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

func (o *outbox) push(f outFrame) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	if len(o.frames) >= o.limit {
		evicted := false
		for i := range o.frames {
			if o.frames[i].droppable {
				o.frames = slices.Delete(o.frames, i, i+1)
				evicted = true
				break
			}
		}
		if !evicted {
			o.mu.Unlock()
			if f.droppable {
				return nil
			}
			return ErrOutboxOverflow
		}
	}
	o.frames = append(o.frames, f)
	o.mu.Unlock()
	o.signal()
	return nil
}

// pop returns the next frame in FIFO order. ok is false when the queue is
// empty.
func (o *outbox) pop() (f outFrame, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.frames) == 0 {
		return outFrame{}, false
	}
	f = o.frames[0]
	o.frames = o.frames[1:]
	return f, true
}

func (o *outbox) close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.signal()
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *outbox) signal() {
	select {
	case o.wake <- struct{}{}:
	default:
	}
}
