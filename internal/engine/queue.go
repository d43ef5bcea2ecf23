// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"sync"

	"github.com/haldex/modbus-rtu/internal/telegram"
)

// telegramQueue is the Master's FIFO of pending queries. Enqueue blocks the
// caller while full, the only point at which an application task calling
// Query suspends; InjectHead drops whatever is queued and installs one
// telegram at the head, for callers that need to jump the line.
type telegramQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []telegram.Telegram
	cap   int
}

func newTelegramQueue(capacity int) *telegramQueue {
	q := &telegramQueue{cap: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends t, blocking while the queue already holds cap telegrams.
func (q *telegramQueue) Enqueue(t telegram.Telegram) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) >= q.cap {
		q.cond.Wait()
	}
	q.items = append(q.items, t)
	q.cond.Signal()
}

// InjectHead discards whatever is queued and installs t as the sole
// pending telegram, waking any worker blocked in Dequeue.
func (q *telegramQueue) InjectHead(t telegram.Telegram) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items[:0], t)
	q.cond.Broadcast()
}

// Dequeue blocks until a telegram is available and returns it.
func (q *telegramQueue) Dequeue() telegram.Telegram {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 {
		q.cond.Wait()
	}
	t := q.items[0]
	q.items = q.items[1:]
	q.cond.Signal() // a slot freed up; wake a blocked Enqueue
	return t
}
