package common

import (
	"testing"
)

func TestWorkerPool(t *testing.T) {
	wp := NewWorkerPool(3, 1)
	defer wp.Close()
	for i := 0; i < 1000; i++ {
		wp.Restart()
		requests := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
		rspChan := make(chan string, len(requests))
		for _, r := range requests {
			r := r
			_ = wp.Submit(func() {
				rspChan <- r
			})
		}
		wp.Wait()

		close(rspChan)
		rspSet := map[string]struct{}{}
		for rsp := range rspChan {
			rspSet[rsp] = struct{}{}
		}
		if len(rspSet) < len(requests) {
			t.Fatal("Did not handle all requests")
		}
		for _, req := range requests {
			if _, ok := rspSet[req]; !ok {
				t.Fatal("Missing expected values:", req)
			}
		}
	}
}

func TestWorkerPoolStopWait(t *testing.T) {
	wp := NewWorkerPool(2, 4)
	done := make(chan struct{}, 8)
	for i := 0; i < 8; i++ {
		_ = wp.Submit(func() {
			done <- struct{}{}
		})
	}
	wp.StopWait()
	if err := wp.Submit(func() {}); err != ErrorStopped {
		t.Fatalf("expected ErrorStopped, got %v", err)
	}
	if len(done) != 8 {
		t.Fatalf("expected 8 completed tasks, got %d", len(done))
	}
}
