package engine

import (
	"context"
	"sync"
)

// walletSlots serializes submissions per (network, wallet address). A
// caller reserves its position with Enqueue and is granted the slot
// strictly in reservation order, so same-wallet orders submit in the order
// they were dispatched no matter how their goroutines are later scheduled.
// Distinct wallets never contend.
type walletSlots struct {
	mu     sync.Mutex
	queues map[string]*slotQueue
}

type slotQueue struct {
	held    bool
	waiters []*slotTicket
}

// slotTicket is one reserved position in a wallet's submission queue.
type slotTicket struct {
	slots   *walletSlots
	key     string
	ready   chan struct{}
	granted bool
}

func newWalletSlots() *walletSlots {
	return &walletSlots{queues: make(map[string]*slotQueue)}
}

func slotKey(network, address string) string {
	return network + ":" + address
}

// Enqueue reserves the next position in the wallet's queue. When the slot
// is free the ticket is granted immediately; otherwise it waits behind
// every earlier reservation.
func (w *walletSlots) Enqueue(network, address string) *slotTicket {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := slotKey(network, address)
	q, ok := w.queues[key]
	if !ok {
		q = &slotQueue{}
		w.queues[key] = q
	}

	t := &slotTicket{slots: w, key: key, ready: make(chan struct{})}
	if !q.held {
		q.held = true
		t.granted = true
		close(t.ready)
	} else {
		q.waiters = append(q.waiters, t)
	}
	return t
}

// grant hands the slot to the next waiter, or frees it. Caller holds mu.
func (w *walletSlots) grant(key string) {
	q := w.queues[key]
	if len(q.waiters) == 0 {
		q.held = false
		return
	}
	next := q.waiters[0]
	q.waiters = q.waiters[1:]
	next.granted = true
	close(next.ready)
}

// drop removes a not-yet-granted ticket from its queue. Caller holds mu.
func (w *walletSlots) drop(key string, t *slotTicket) {
	q := w.queues[key]
	for i, waiter := range q.waiters {
		if waiter == t {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return
		}
	}
}

// Wait blocks until the ticket reaches the head of its queue or ctx is
// done. Giving up forfeits the position; a grant that raced the
// cancellation is passed straight to the next waiter.
func (t *slotTicket) Wait(ctx context.Context) error {
	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		t.slots.mu.Lock()
		if t.granted {
			t.slots.grant(t.key)
		} else {
			t.slots.drop(t.key, t)
		}
		t.slots.mu.Unlock()
		return ctx.Err()
	}
}

// Release frees the slot and wakes the next waiter. Must be called exactly
// once per successful Wait.
func (t *slotTicket) Release() {
	t.slots.mu.Lock()
	t.slots.grant(t.key)
	t.slots.mu.Unlock()
}

// Abandon gives up the reservation without submitting, whether or not the
// slot was already granted.
func (t *slotTicket) Abandon() {
	t.slots.mu.Lock()
	if t.granted {
		t.slots.grant(t.key)
	} else {
		t.slots.drop(t.key, t)
	}
	t.slots.mu.Unlock()
}
