package resilience

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSingleFlight_CollapsesConcurrentCalls(t *testing.T) {
	var g SingleFlight
	var executions atomic.Int32
	var shared atomic.Int32

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			<-start
			val, err, wasShared := g.Do("roles/quakenet/player-1", func() (any, error) {
				executions.Add(1)
				time.Sleep(20 * time.Millisecond)
				return "member", nil
			})
			if err != nil {
				t.Errorf("singleflight call failed: %v", err)
			}
			if val != "member" {
				t.Errorf("unexpected value: %v", val)
			}
			if wasShared {
				shared.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := executions.Load(); got != 1 {
		t.Fatalf("expected function to run once, got %d", got)
	}
	if got := shared.Load(); got != workers-1 {
		t.Fatalf("expected %d shared callers, got %d", workers-1, got)
	}
}

func TestSingleFlight_ErrorsReachEveryCaller(t *testing.T) {
	var g SingleFlight
	wantErr := errors.New("upstream unavailable")

	_, err, _ := g.Do("roles/quakenet/player-2", func() (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	// The failed call is not cached; the next call runs the function again.
	val, err, _ := g.Do("roles/quakenet/player-2", func() (any, error) {
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if val != "recovered" {
		t.Fatalf("unexpected value: %v", val)
	}
}
