package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownReverseOrder(t *testing.T) {
	m := NewManager(nil)

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
		}
	}

	m.Register("display", record("display"))
	m.Register("camera", record("camera"))
	m.RegisterCloser("detector", closerFunc(func() error {
		record("detector")()
		return errors.New("already closed")
	}))

	m.Shutdown()
	m.Shutdown()

	want := []string{"detector", "camera", "display"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}

	select {
	case <-m.Context().Done():
	default:
		t.Fatal("context not cancelled")
	}
	select {
	case <-m.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestShutdownTimeout(t *testing.T) {
	m := NewManager(nil)
	m.SetTimeout(10 * time.Millisecond)

	block := make(chan struct{})
	defer close(block)
	finished := false
	m.Register("stuck", Func(func() { <-block }))
	m.Register("fast", Func(func() { finished = true }))

	start := time.Now()
	m.Shutdown()
	if time.Since(start) > time.Second {
		t.Fatal("shutdown waited on a stuck component")
	}
	if !finished {
		t.Fatal("fast component skipped")
	}
}
