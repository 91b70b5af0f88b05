package workerpool

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/searchstack/textsearchd/pkg/errors"
)

func TestSubmitAndWait(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var ran atomic.Int64
	futures := make([]*Future, 0, 100)
	for i := 0; i < 100; i++ {
		fut, err := p.Submit(func() error {
			ran.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		futures = append(futures, fut)
	}
	for _, fut := range futures {
		if err := fut.Wait(); err != nil {
			t.Errorf("task error: %v", err)
		}
	}
	if got := ran.Load(); got != 100 {
		t.Errorf("ran %d tasks, want 100", got)
	}
}

func TestTaskErrorPropagates(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	boom := errors.New("boom")
	fut, err := p.Submit(func() error { return boom })
	if err != nil {
		t.Fatal(err)
	}
	if got := fut.Wait(); !errors.Is(got, boom) {
		t.Errorf("Wait = %v, want %v", got, boom)
	}
}

func TestPanicDoesNotPoisonPool(t *testing.T) {
	p := New(1)
	defer p.Shutdown()

	fut, err := p.Submit(func() error { panic("kaboom") })
	if err != nil {
		t.Fatal(err)
	}
	if got := fut.Wait(); got == nil {
		t.Error("panicking task returned nil error")
	}

	// The single worker must survive the panic.
	fut, err = p.Submit(func() error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if got := fut.Wait(); got != nil {
		t.Errorf("follow-up task failed: %v", got)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(2)
	p.Shutdown()

	if _, err := p.Submit(func() error { return nil }); !errors.Is(err, apperrors.ErrPoolClosed) {
		t.Errorf("Submit after shutdown = %v, want ErrPoolClosed", err)
	}
}

func TestShutdownDrainsQueue(t *testing.T) {
	p := New(2)

	var done atomic.Int64
	for i := 0; i < 50; i++ {
		if _, err := p.Submit(func() error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	p.Shutdown()
	if got := done.Load(); got != 50 {
		t.Errorf("shutdown completed with %d/50 tasks done", got)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	p := New(2)
	p.Shutdown()
	p.Shutdown()
}

func TestWorkersClamped(t *testing.T) {
	p := New(0)
	defer p.Shutdown()
	if p.Workers() != 1 {
		t.Errorf("Workers = %d, want 1", p.Workers())
	}
}
