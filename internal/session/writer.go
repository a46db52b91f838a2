package session

import (
	"log"
	"sync"

	"tetrisduel/internal/storage"
)

// storeOp is one queued write: a row to save, or a code to delete.
type storeOp struct {
	row    storage.SessionRow
	delete string
}

// writer applies store operations in the order they were queued, on its own
// goroutine, so session locks are never held across disk I/O.
type writer struct {
	store   Store
	mu      sync.Mutex
	queue   []storeOp
	pending sync.WaitGroup
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newWriter(store Store) *writer {
	w := &writer{
		store:   store,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(op storeOp) {
	w.mu.Lock()
	w.queue = append(w.queue, op)
	w.pending.Add(1)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, op := range batch {
			w.apply(op)
			w.pending.Done()
		}
	}
}

func (w *writer) apply(op storeOp) {
	if op.delete != "" {
		if err := w.store.DeleteSession(op.delete); err != nil {
			log.Printf("delete session %s: %v", op.delete, err)
		}
		return
	}
	if err := w.store.SaveSession(op.row); err != nil {
		log.Printf("save session %s: %v", op.row.Code, err)
	}
}

// flush blocks until every queued operation has been applied.
func (w *writer) flush() {
	w.pending.Wait()
}

func (w *writer) close() {
	close(w.done)
	<-w.stopped
}
