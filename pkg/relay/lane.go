package relay

import (
	"log/slog"
	"sync"

	"github.com/eapache/queue"
)

// A Lane is one worker execution context: a goroutine draining a FIFO
// queue of closures. Work posted to the same lane runs sequentially in
// post order, so anything owned by a lane needs no further locking on
// the lane's own path.
type Lane struct {
	idx    int
	logger *slog.Logger

	mu    sync.Mutex
	tasks *queue.Queue

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func newLane(idx int, logger *slog.Logger) *Lane {
	return &Lane{
		idx:    idx,
		logger: logger,
		tasks:  queue.New(),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
	}
}

// Index returns the lane's position in its pool's creation order.
func (l *Lane) Index() int { return l.idx }

// Dispatch enqueues fn on the lane. It never blocks and may be called
// from any goroutine, including the lane's own.
func (l *Lane) Dispatch(fn func()) {
	l.mu.Lock()
	l.tasks.Add(fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// wait blocks until every task queued before the call has run.
func (l *Lane) wait() {
	done := make(chan struct{})
	l.Dispatch(func() { close(done) })
	<-done
}

// pending reports the queue depth. Test hook.
func (l *Lane) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}

func (l *Lane) run() {
	for {
		l.drain()
		select {
		case <-l.wake:
		case <-l.quit:
			l.drain()
			return
		}
	}
}

func (l *Lane) drain() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks.Remove().(func())
		l.mu.Unlock()
		l.invoke(fn)
	}
}

// invoke runs one task, containing panics so a bad task cannot take
// down the lane and every session assigned to it.
func (l *Lane) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in lane task",
				"lane", l.idx,
				"panic", r)
		}
	}()
	fn()
}

func (l *Lane) stop() {
	l.once.Do(func() { close(l.quit) })
}

// Pool manages up to bound lanes. Lanes are created lazily on demand
// and live until Shutdown; the pool tracks how many sessions each lane
// carries and always assigns the least-loaded one.
type Pool struct {
	logger *slog.Logger

	mu    sync.Mutex
	bound int
	lanes []*Lane
	load  []int
	wg    sync.WaitGroup
}

// NewPool creates a pool bounded at the given lane count. A bound
// below 1 falls back to the host's ideal concurrency.
func NewPool(bound int, logger *slog.Logger) *Pool {
	if bound < 1 {
		bound = idealConcurrency()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{logger: logger, bound: bound}
}

// Bound returns the maximum lane count.
func (p *Pool) Bound() int { return p.bound }

// Assign picks a lane for a new session and increments its load.
// While under the bound a fresh lane is started; once all lanes exist
// the least-loaded one wins, with ties broken by creation order.
func (p *Pool) Assign() *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.lanes) < p.bound {
		l := newLane(len(p.lanes), p.logger)
		p.lanes = append(p.lanes, l)
		p.load = append(p.load, 1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			l.run()
		}()
		return l
	}
	best := 0
	for i, n := range p.load {
		if n < p.load[best] {
			best = i
		}
	}
	p.load[best]++
	return p.lanes[best]
}

// Release returns a session's slot on the given lane. The lane itself
// keeps running; only the load count drops.
func (p *Pool) Release(l *Lane) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l.idx < len(p.load) && p.load[l.idx] > 0 {
		p.load[l.idx]--
	}
}

// Loads returns a copy of the per-lane load counts, indexed by lane
// creation order.
func (p *Pool) Loads() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int, len(p.load))
	copy(out, p.load)
	return out
}

// Shutdown stops every lane after its queue drains and waits for the
// lane goroutines to exit.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	lanes := make([]*Lane, len(p.lanes))
	copy(lanes, p.lanes)
	p.mu.Unlock()
	for _, l := range lanes {
		l.stop()
	}
	p.wg.Wait()
}
