package btree

import "sync"

// LatchMode selects the strength of a page latch acquisition.
type LatchMode int

const (
	LatchRead LatchMode = iota
	LatchWrite
)

// pageLatch guards one in-flight page against concurrent readers and the
// single writer, adapted from the teacher's btree/latch.go PageLatch.
type pageLatch struct {
	mu sync.RWMutex
}

func (l *pageLatch) lock(mode LatchMode) {
	if mode == LatchWrite {
		l.mu.Lock()
	} else {
		l.mu.RLock()
	}
}

func (l *pageLatch) unlock(mode LatchMode) {
	if mode == LatchWrite {
		l.mu.Unlock()
	} else {
		l.mu.RUnlock()
	}
}

// latchManager hands out one pageLatch per page id, created lazily.
// Grounded on the teacher's LatchManager, which serves the same role for
// its concurrent Get/Put paths; here it backs only Find's traversal
// (cursors take no latches), since inserts and deletes serialize on
// Tree.mu (spec.md's baseline
// concurrency model has a single writer).
type latchManager struct {
	mu      sync.Mutex
	latches map[uint32]*pageLatch
}

func newLatchManager() *latchManager {
	return &latchManager{latches: make(map[uint32]*pageLatch)}
}

func (lm *latchManager) get(id uint32) *pageLatch {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	l, ok := lm.latches[id]
	if !ok {
		l = &pageLatch{}
		lm.latches[id] = l
	}
	return l
}

// latchCoupling implements crabbing: a traversal holds at most a parent
// and child latch at once, releasing the parent once the child is safely
// held. Adapted from the teacher's LatchCoupling.
type latchCoupling struct {
	lm   *latchManager
	held []*pageLatch
	mode LatchMode
}

func newLatchCoupling(lm *latchManager, mode LatchMode) *latchCoupling {
	return &latchCoupling{lm: lm, mode: mode}
}

// step acquires the latch for id, then releases all previously held
// latches except the one just acquired (read-only traversal never needs
// to hold more than one page latch at a time once the child is latched).
func (c *latchCoupling) step(id uint32) {
	l := c.lm.get(id)
	l.lock(c.mode)
	c.releaseAll()
	c.held = append(c.held, l)
}

func (c *latchCoupling) releaseAll() {
	for _, l := range c.held {
		l.unlock(c.mode)
	}
	c.held = c.held[:0]
}
