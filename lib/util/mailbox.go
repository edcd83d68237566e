// Package util contains small concurrency and hashing helpers used across
// the transaction layers.
//
// Mailbox is an unbounded lock-free multi-producer single-consumer queue.
// Items pushed by one goroutine are delivered in push order. Under
// concurrent pushes the relative order of different producers is decided
// by whoever links its node first.
package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type envelope[T any] struct {
	value *T
	next  atomic.Pointer[envelope[T]]
}

// Mailbox delivers pushed items to a single consumer through Recv.
type Mailbox[T any] struct {
	head   atomic.Pointer[envelope[T]]
	tail   atomic.Pointer[envelope[T]]
	out    chan *T
	closed atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewMailbox starts the delivery goroutine of a new mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	stub := &envelope[T]{}
	m := &Mailbox[T]{out: make(chan *T)}
	m.cond = sync.NewCond(&m.mu)
	m.head.Store(stub)
	m.tail.Store(stub)

	go m.deliver()
	return m
}

// Push enqueues value. It returns false if the mailbox is closed or value is nil.
func (m *Mailbox[T]) Push(value *T) bool {
	if value == nil || m.closed.Load() {
		return false
	}

	n := &envelope[T]{value: value}
	var spins uint8
	for {
		tail := m.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// another producer may have moved tail already
				m.tail.CompareAndSwap(tail, n)
				m.mu.Lock()
				m.cond.Signal()
				m.mu.Unlock()
				return true
			}
		} else {
			m.tail.CompareAndSwap(tail, next)
		}

		if spins < 10 {
			spins++
			for i := 0; i < 1<<spins; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

func (m *Mailbox[T]) deliver() {
	defer close(m.out)

	for {
		delivered := false
		for {
			head := m.head.Load()
			next := head.next.Load()
			if next == nil {
				break
			}
			delivered = true
			value := next.value
			m.head.Store(next)
			m.out <- value
			next.value = nil
		}

		if !delivered {
			if m.closed.Load() && m.head.Load().next.Load() == nil {
				return
			}
			m.mu.Lock()
			if m.head.Load().next.Load() == nil && !m.closed.Load() {
				m.cond.Wait()
			}
			m.mu.Unlock()
		}
	}
}

// Recv is the consumer side. It is closed after Close once every item
// pushed before Close was delivered.
func (m *Mailbox[T]) Recv() <-chan *T {
	return m.out
}

// Close rejects further pushes.
func (m *Mailbox[T]) Close() {
	m.closed.Store(true)
	m.mu.Lock()
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *Mailbox[T]) IsClosed() bool {
	return m.closed.Load()
}

// Len counts queued items. It walks the list and is meant for diagnostics.
func (m *Mailbox[T]) Len() int {
	count := 0
	for cur := m.head.Load().next.Load(); cur != nil; cur = cur.next.Load() {
		count++
	}
	return count
}
