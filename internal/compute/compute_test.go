package compute

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParallelFor(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		minChunk int
	}{
		{"serial", 10, 100},
		{"chunked", 1000, 10},
		{"uneven", 1001, 7},
		{"empty", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]int32, tt.n)
			ParallelFor(tt.n, tt.minChunk, func(start, end int) {
				for i := start; i < end; i++ {
					atomic.AddInt32(&seen[i], 1)
				}
			})
			for i, c := range seen {
				if c != 1 {
					t.Fatalf("index %d visited %d times", i, c)
				}
			}
		})
	}
}

func TestReduce(t *testing.T) {
	got := Reduce(100, 3, 2, func(start, end int, acc []float64) {
		for i := start; i < end; i++ {
			acc[0] += float64(i)
			acc[1]++
		}
	})
	if got[0] != 4950 || got[1] != 100 {
		t.Errorf("expected [4950 100], got %v", got)
	}
}

func TestGroup(t *testing.T) {
	g := NewGroup(context.Background(), 2)
	var count int32
	for i := 0; i < 5; i++ {
		g.Go(func(ctx context.Context) error {
			atomic.AddInt32(&count, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	if count != 5 {
		t.Errorf("expected 5 tasks, got %d", count)
	}
}

func TestGroup_Error(t *testing.T) {
	boom := errors.New("boom")
	g := NewGroup(context.Background(), 0)
	g.Go(func(ctx context.Context) error { return boom })
	g.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := g.Wait(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestBufferPool(t *testing.T) {
	p := NewBufferPool(4)
	buf := p.Get()
	if len(buf) != 4 {
		t.Fatalf("expected length 4, got %d", len(buf))
	}
	buf[0] = 3
	p.Put(buf)

	again := p.Get()
	for _, v := range again {
		if v != 0 {
			t.Fatal("expected zeroed buffer")
		}
	}
	p.Put(make([]float64, 3))
}
