package location

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
)

type keyListener struct{ id int }

func (*keyListener) OnLocationUpdated(Sample)  {}
func (*keyListener) OnHeadingUpdated(float64) {}

// sliceListener has a non-comparable dynamic type.
type sliceListener []int

func (sliceListener) OnLocationUpdated(Sample)  {}
func (sliceListener) OnHeadingUpdated(float64) {}

func TestRegistry_AddIsAdditive(t *testing.T) {
	var r Registry
	l := &keyListener{id: 1}
	e1, e2 := GoExecutor{}, ExecutorFunc(func(task func()) { go task() })

	if err := r.Add(l, e1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(l, e2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("len=%d want 2", r.Len())
	}
	if got := r.Remove(l); got != 2 {
		t.Fatalf("removed=%d want 2", got)
	}
	if got := r.Remove(l); got != 0 {
		t.Fatalf("second remove=%d want 0", got)
	}
	if r.Len() != 0 {
		t.Fatalf("len=%d want 0", r.Len())
	}
}

func TestRegistry_RejectsNil(t *testing.T) {
	var r Registry
	if err := r.Add(nil, GoExecutor{}); !errors.Is(err, ErrNilListener) {
		t.Fatalf("err=%v want ErrNilListener", err)
	}
	if err := r.Add(&keyListener{}, nil); !errors.Is(err, ErrNilExecutor) {
		t.Fatalf("err=%v want ErrNilExecutor", err)
	}
	if r.Remove(nil) != 0 {
		t.Fatalf("Remove(nil) should be a no-op")
	}
}

func TestRegistry_NonComparableListenerDoesNotPanic(t *testing.T) {
	var r Registry
	l := sliceListener{1, 2}
	if err := r.Add(l, GoExecutor{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := r.Remove(sliceListener{1, 2}); got != 0 {
		t.Fatalf("removed=%d want 0", got)
	}
	if got := r.Remove(&keyListener{}); got != 0 {
		t.Fatalf("removed=%d want 0", got)
	}
}

func TestRegistry_SnapshotIsStable(t *testing.T) {
	var r Registry
	a, b := &keyListener{id: 1}, &keyListener{id: 2}
	_ = r.Add(a, GoExecutor{})
	snap := r.Snapshot()
	_ = r.Add(b, GoExecutor{})
	r.Remove(a)

	if len(snap) != 1 || snap[0].Listener != Listener(a) {
		t.Fatalf("snapshot mutated: %+v", snap)
	}
	cur := r.Snapshot()
	if len(cur) != 1 || cur[0].Listener != Listener(b) {
		t.Fatalf("current=%+v", cur)
	}
}

// The registration multiset after any add/remove sequence matches a simple
// counting model.
func TestRegistry_MatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	listeners := []*keyListener{{id: 0}, {id: 1}, {id: 2}, {id: 3}}

	for round := 0; round < 50; round++ {
		var r Registry
		model := map[int]int{}
		for step := 0; step < 200; step++ {
			l := listeners[rng.Intn(len(listeners))]
			if rng.Intn(3) == 0 {
				removed := r.Remove(l)
				if removed != model[l.id] {
					t.Fatalf("round %d step %d: removed=%d want %d", round, step, removed, model[l.id])
				}
				model[l.id] = 0
				continue
			}
			if err := r.Add(l, GoExecutor{}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			model[l.id]++
		}

		got := map[int]int{}
		for _, reg := range r.Snapshot() {
			got[reg.Listener.(*keyListener).id]++
		}
		for _, l := range listeners {
			if got[l.id] != model[l.id] {
				t.Fatalf("round %d listener %d: count=%d want %d", round, l.id, got[l.id], model[l.id])
			}
		}
	}
}

func TestRegistry_ConcurrentAddRemove(t *testing.T) {
	var r Registry
	var wg sync.WaitGroup
	const workers = 8
	const perWorker = 200

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			l := &keyListener{id: w}
			for i := 0; i < perWorker; i++ {
				_ = r.Add(l, GoExecutor{})
				_ = r.Snapshot()
			}
			if w%2 == 0 {
				r.Remove(l)
			}
		}(w)
	}
	wg.Wait()

	if got, want := r.Len(), (workers/2)*perWorker; got != want {
		t.Fatalf("len=%d want %d", got, want)
	}
}
