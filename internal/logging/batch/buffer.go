package batch

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Chichichkin/LokiLoggerHandler/internal/logging"
)

var ErrClosed = errors.New("handler is closed")

// OverflowPolicy decides what happens when a bounded buffer is full.
type OverflowPolicy int

const (
	// DropOldest discards the entry at the head of the buffer.
	DropOldest OverflowPolicy = iota
	// DropNewest discards the entry being pushed.
	DropNewest
	// Block makes the producer wait until a flush makes room.
	Block
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop_oldest"
	case DropNewest:
		return "drop_newest"
	case Block:
		return "block"
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int(p))
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest", "drop-oldest":
		return DropOldest, nil
	case "drop_newest", "drop-newest":
		return DropNewest, nil
	case "block":
		return Block, nil
	}
	return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
}

// Buffer is a FIFO of pending entries, drained as a whole on flush.
type Buffer struct {
	mu      sync.Mutex
	notFull *sync.Cond
	entries []logging.BufferedEntry
	max     int
	policy  OverflowPolicy
	closed  bool
}

// NewBuffer creates a buffer holding at most max entries; max <= 0 means
// unbounded.
func NewBuffer(max int, policy OverflowPolicy) *Buffer {
	b := &Buffer{max: max, policy: policy}
	b.notFull = sync.NewCond(&b.mu)
	return b
}

func (b *Buffer) full() bool {
	return b.max > 0 && len(b.entries) >= b.max
}

// Push appends e and returns the buffered length. dropped reports whether the
// overflow policy discarded an entry to make the push fit.
func (b *Buffer) Push(e logging.BufferedEntry) (n int, dropped bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.policy == Block {
		for b.full() && !b.closed {
			b.notFull.Wait()
		}
	}
	if b.closed {
		return len(b.entries), false, ErrClosed
	}

	if b.full() {
		switch b.policy {
		case DropNewest:
			return len(b.entries), true, nil
		default:
			b.entries = b.entries[1:]
			dropped = true
		}
	}

	b.entries = append(b.entries, e)
	return len(b.entries), dropped, nil
}

// Drain takes everything buffered so far. Entries pushed afterwards belong
// to the next drain.
func (b *Buffer) Drain() []logging.BufferedEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.entries
	b.entries = nil
	b.notFull.Broadcast()
	return batch
}

// Requeue puts a batch back in front of anything pushed since it was drained.
// When the result exceeds the bound, the oldest entries go first, except under
// DropNewest. It returns how many entries were discarded.
func (b *Buffer) Requeue(batch []logging.BufferedEntry) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := make([]logging.BufferedEntry, 0, len(batch)+len(b.entries))
	merged = append(merged, batch...)
	merged = append(merged, b.entries...)

	dropped := 0
	if b.max > 0 && len(merged) > b.max {
		dropped = len(merged) - b.max
		if b.policy == DropNewest {
			merged = merged[:b.max]
		} else {
			merged = merged[dropped:]
		}
	}

	b.entries = merged
	return dropped
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close rejects further pushes and releases blocked producers.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notFull.Broadcast()
}
