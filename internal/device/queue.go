package device

import "sync"

// opQueue runs the operations of one stream in submission order on a
// dedicated goroutine. Synchronize blocks until the queue drains and reports
// the first error seen since the previous synchronization.
type opQueue struct {
	ops  chan func() error
	wg   sync.WaitGroup
	mu   sync.Mutex
	err  error
	once sync.Once
}

func newOpQueue() *opQueue {
	q := &opQueue{ops: make(chan func() error, 64)}
	go q.loop()
	return q
}

func (q *opQueue) loop() {
	for op := range q.ops {
		if err := op(); err != nil {
			q.mu.Lock()
			if q.err == nil {
				q.err = err
			}
			q.mu.Unlock()
		}
		q.wg.Done()
	}
}

func (q *opQueue) submit(op func() error) {
	q.wg.Add(1)
	q.ops <- op
}

func (q *opQueue) sync() error {
	q.wg.Wait()
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.err
	q.err = nil
	return err
}

func (q *opQueue) close() {
	q.once.Do(func() {
		q.wg.Wait()
		close(q.ops)
	})
}

// streamSet maps stream handles to their queues.
type streamSet struct {
	mu     sync.Mutex
	next   Stream
	queues map[Stream]*opQueue
}

func (s *streamSet) create() Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queues == nil {
		s.queues = make(map[Stream]*opQueue)
	}
	s.next++
	s.queues[s.next] = newOpQueue()
	return s.next
}

func (s *streamSet) get(st Stream) (*opQueue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[st]
	return q, ok
}

// run executes op synchronously on the default stream or enqueues it.
func (s *streamSet) run(st Stream, op func() error) error {
	if st == DefaultStream {
		return op()
	}
	q, ok := s.get(st)
	if !ok {
		return ErrInvalidPointer
	}
	q.submit(op)
	return nil
}

func (s *streamSet) sync(st Stream) error {
	if st == DefaultStream {
		return nil
	}
	q, ok := s.get(st)
	if !ok {
		return ErrInvalidPointer
	}
	return q.sync()
}

func (s *streamSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, q := range s.queues {
		q.close()
		delete(s.queues, id)
	}
}
