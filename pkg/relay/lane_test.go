package relay

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// barrier blocks until every task dispatched to l before the call has
// run.
func barrier(t *testing.T, l *Lane) {
	t.Helper()
	done := make(chan struct{})
	l.Dispatch(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lane did not drain")
	}
}

func TestLaneRunsTasksInOrder(t *testing.T) {
	p := NewPool(1, testLogger())
	defer p.Shutdown()
	l := p.Assign()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Dispatch(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	barrier(t, l)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("ran %d tasks, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran out of order (saw %d)", i, v)
		}
	}
}

func TestLaneSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, testLogger())
	defer p.Shutdown()
	l := p.Assign()

	ran := make(chan struct{})
	l.Dispatch(func() { panic("boom") })
	l.Dispatch(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("lane dead after panicking task")
	}
}

func TestPoolCreatesLanesLazily(t *testing.T) {
	p := NewPool(3, testLogger())
	defer p.Shutdown()

	if got := len(p.Loads()); got != 0 {
		t.Fatalf("fresh pool has %d lanes, want 0", got)
	}
	a := p.Assign()
	b := p.Assign()
	if a == b {
		t.Fatal("second assignment reused a lane while under the bound")
	}
	if got := p.Loads(); !reflect.DeepEqual(got, []int{1, 1}) {
		t.Fatalf("Loads() = %v, want [1 1]", got)
	}
}

func TestPoolAssignPrefersLeastLoaded(t *testing.T) {
	p := NewPool(2, testLogger())
	defer p.Shutdown()

	a := p.Assign() // lane 0
	b := p.Assign() // lane 1
	if a.Index() != 0 || b.Index() != 1 {
		t.Fatalf("creation order gave indices %d,%d", a.Index(), b.Index())
	}

	// At the bound and tied: the earliest-created lane wins.
	c := p.Assign()
	if c != a {
		t.Fatalf("tie broken to lane %d, want lane 0", c.Index())
	}
	if got := p.Loads(); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Fatalf("Loads() = %v, want [2 1]", got)
	}

	// Lane 1 is now lighter and must win.
	d := p.Assign()
	if d != b {
		t.Fatalf("least-loaded pick gave lane %d, want lane 1", d.Index())
	}

	// Releasing drops the count without stopping the lane.
	p.Release(a)
	p.Release(a)
	if got := p.Loads(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Fatalf("Loads() after release = %v, want [0 2]", got)
	}
	if e := p.Assign(); e != a {
		t.Fatalf("empty lane not reused, got lane %d", e.Index())
	}
}

func TestPoolBoundFloor(t *testing.T) {
	p := NewPool(0, testLogger())
	defer p.Shutdown()
	if p.Bound() < 1 {
		t.Fatalf("Bound() = %d, want at least 1", p.Bound())
	}
}

func TestPoolShutdownDrainsPendingTasks(t *testing.T) {
	p := NewPool(1, testLogger())
	l := p.Assign()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 50; i++ {
		l.Dispatch(func() {
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	p.Shutdown()

	mu.Lock()
	defer mu.Unlock()
	if ran != 50 {
		t.Fatalf("shutdown dropped tasks: ran %d, want 50", ran)
	}
}
