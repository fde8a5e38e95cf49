package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type countingScanner struct {
	calls int64
	block chan struct{}
}

func (s *countingScanner) ScanHomepage(ctx context.Context) error {
	atomic.AddInt64(&s.calls, 1)
	if s.block != nil {
		<-s.block
	}
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestPollerRunsImmediately(t *testing.T) {
	scanner := &countingScanner{}
	p := NewPoller(scanner, time.Hour, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&scanner.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial scan never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollerSkipsOverlappingTicks(t *testing.T) {
	scanner := &countingScanner{block: make(chan struct{})}
	p := NewPoller(scanner, 20*time.Millisecond, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// the first scan blocks; several intervals pass with no second scan
	time.Sleep(150 * time.Millisecond)
	if calls := atomic.LoadInt64(&scanner.calls); calls != 1 {
		t.Errorf("got %d scans while one was still running, want 1", calls)
	}

	close(scanner.block)
	p.Stop()
}
