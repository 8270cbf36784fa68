package slab

import (
	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/arcology-network/unbase/memo"
)

// waiterTable tracks in-flight GetMemo(allowRemote=true) calls waiting on
// a memo that isn't resident yet. Each registration gets its own
// buffered channel so satisfy never blocks on a slow or abandoned
// waiter.
type waiterTable struct {
	mu      deadlock.Mutex
	waiters map[memo.ID][]chan memo.Memo
}

func newWaiterTable() *waiterTable {
	return &waiterTable{waiters: make(map[memo.ID][]chan memo.Memo)}
}

// register returns a channel that will receive the memo once satisfy is
// called for id, and a cancel func that removes the registration. cancel
// must always be called (typically via defer) to avoid leaking the
// waiter entry when the caller's context is canceled or times out first.
func (w *waiterTable) register(id memo.ID) (<-chan memo.Memo, func()) {
	ch := make(chan memo.Memo, 1)

	w.mu.Lock()
	w.waiters[id] = append(w.waiters[id], ch)
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		chans := w.waiters[id]
		for i, c := range chans {
			if c == ch {
				chans = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(chans) == 0 {
			delete(w.waiters, id)
		} else {
			w.waiters[id] = chans
		}
	}
	return ch, cancel
}

// satisfy delivers m to every waiter registered for m.ID(), then clears
// the registration: each waiter is a one-shot.
func (w *waiterTable) satisfy(m memo.Memo) {
	w.mu.Lock()
	chans := w.waiters[m.ID()]
	delete(w.waiters, m.ID())
	w.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- m:
		default:
		}
	}
}
