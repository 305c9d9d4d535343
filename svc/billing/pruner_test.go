package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/studyhub/svc/billing"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *recordingPruner) PruneEvents(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, p.err
}

func (p *recordingPruner) calls() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.cutoffs...)
}

func TestRunLedgerPruner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"prunes periodically", nil},
		{"keeps running after errors", errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &recordingPruner{err: tt.err}
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				billing.RunLedgerPruner(ctx, p, 72*time.Hour, 10*time.Millisecond, nil)
				close(done)
			}()

			assert.Eventually(t, func() bool { return len(p.calls()) >= 2 }, time.Second, 5*time.Millisecond)
			cancel()
			<-done

			cutoff := p.calls()[0]
			assert.WithinDuration(t, time.Now().Add(-72*time.Hour), cutoff, 5*time.Second)
		})
	}
}

func TestRunLedgerPruner_Disabled(t *testing.T) {
	t.Parallel()

	p := &recordingPruner{}
	billing.RunLedgerPruner(context.Background(), p, time.Hour, 0, nil)
	billing.RunLedgerPruner(context.Background(), p, 0, time.Millisecond, nil)
	assert.Empty(t, p.calls())
}
