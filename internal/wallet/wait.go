package wallet

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/keys"
	"github.com/djkazic/p2wpkh-go/internal/utxo"
)

// PollInterval is how often WaitForFunds rescans.
const PollInterval = 5 * time.Second

const maxBackoff = 60 * time.Second

// Poller rescans an address until its balance reaches a threshold.
type Poller struct {
	locator  *utxo.Locator
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller creates a poller. A non-positive interval means PollInterval.
func NewPoller(locator *utxo.Locator, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = PollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{locator: locator, interval: interval, logger: logger}
}

// WaitForFunds blocks until addr holds at least minValue satoshis or ctx is
// done. Scan failures back off exponentially up to a minute.
func (p *Poller) WaitForFunds(ctx context.Context, addr keys.Address, minValue int64) (*utxo.Snapshot, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var consecutiveFailures int
	var lastFailureTime time.Time

	check := func() (*utxo.Snapshot, bool) {
		snap, err := p.locator.Scan(ctx, addr)
		if err != nil {
			consecutiveFailures++
			lastFailureTime = time.Now()
			p.logger.Warn("balance scan failed",
				zap.Error(err),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Duration("next_retry", p.backoffDuration(consecutiveFailures)),
			)
			return nil, false
		}
		if consecutiveFailures > 0 {
			p.logger.Info("balance scan recovered",
				zap.Int("after_failures", consecutiveFailures),
			)
			consecutiveFailures = 0
		}
		return snap, snap.Total >= minValue
	}

	if snap, ok := check(); ok {
		return snap, nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if consecutiveFailures > 0 && time.Since(lastFailureTime) < p.backoffDuration(consecutiveFailures) {
				continue
			}
			if snap, ok := check(); ok {
				return snap, nil
			}
		}
	}
}

// backoffDuration computes exponential backoff capped at 60s.
func (p *Poller) backoffDuration(failures int) time.Duration {
	if failures <= 0 {
		return p.interval
	}
	d := p.interval
	for i := 1; i < failures; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	return d
}
