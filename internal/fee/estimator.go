// Package fee turns node fee estimates into a rate for the assembler.
package fee

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/djkazic/p2wpkh-go/internal/bitcoin"
	"github.com/djkazic/p2wpkh-go/internal/metrics"
	"github.com/djkazic/p2wpkh-go/internal/segwit"
)

const (
	// DefaultFallbackRate is used whenever the node has no usable estimate.
	DefaultFallbackRate segwit.FeeRate = 1000

	DefaultConfTarget = 100
	DefaultMode       = "economical"

	maxConfTarget = 1008
)

// Source is the node call the estimator needs.
type Source interface {
	EstimateSmartFee(ctx context.Context, confTarget int, mode string) (*bitcoin.FeeEstimate, error)
}

// Config tunes the estimate request.
type Config struct {
	ConfTarget   int
	Mode         string
	FallbackRate segwit.FeeRate
}

// DefaultConfig returns the default estimate settings.
func DefaultConfig() Config {
	return Config{
		ConfTarget:   DefaultConfTarget,
		Mode:         DefaultMode,
		FallbackRate: DefaultFallbackRate,
	}
}

// Validate checks the settings against what estimatesmartfee accepts.
func (c Config) Validate() error {
	if c.ConfTarget < 1 || c.ConfTarget > maxConfTarget {
		return fmt.Errorf("conf target %d outside [1, %d]", c.ConfTarget, maxConfTarget)
	}
	switch strings.ToLower(c.Mode) {
	case "economical", "conservative", "unset":
	default:
		return fmt.Errorf("unknown estimate mode %q", c.Mode)
	}
	if c.FallbackRate < 0 {
		return fmt.Errorf("negative fallback rate %d", c.FallbackRate)
	}
	return nil
}

var errNoEstimate = errors.New("node returned no fee rate")

// Estimator queries the node and converts its BTC/kvB answer to whole
// sat/vB. Failures are never surfaced: the fallback rate is used instead.
type Estimator struct {
	source Source
	cfg    Config
	logger *zap.Logger
}

// NewEstimator creates an estimator. Invalid settings are rejected.
func NewEstimator(source Source, cfg Config, logger *zap.Logger) (*Estimator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{source: source, cfg: cfg, logger: logger}, nil
}

// Rate returns the fee rate to spend at and whether it is the fallback.
func (e *Estimator) Rate(ctx context.Context) (segwit.FeeRate, bool) {
	rate, err := e.query(ctx)
	if err != nil {
		metrics.FeeFallbacks.Inc()
		e.logger.Warn("fee estimate unavailable, using fallback",
			zap.Error(err),
			zap.Int64("fallback_rate", int64(e.cfg.FallbackRate)),
			zap.Int("conf_target", e.cfg.ConfTarget),
		)
		metrics.FeeRate.Set(float64(e.cfg.FallbackRate))
		return e.cfg.FallbackRate, true
	}

	e.logger.Debug("fee estimate",
		zap.Int64("rate", int64(rate)),
		zap.Int("conf_target", e.cfg.ConfTarget),
	)
	metrics.FeeRate.Set(float64(rate))
	return rate, false
}

func (e *Estimator) query(ctx context.Context) (segwit.FeeRate, error) {
	est, err := e.source.EstimateSmartFee(ctx, e.cfg.ConfTarget, e.cfg.Mode)
	if err != nil {
		return 0, err
	}
	if est.FeeRate == "" {
		if len(est.Errors) > 0 {
			return 0, fmt.Errorf("%w: %s", errNoEstimate, strings.Join(est.Errors, "; "))
		}
		return 0, errNoEstimate
	}

	satPerVByte, err := bitcoin.BTCPerKvBToSatPerVByte(est.FeeRate)
	if err != nil {
		return 0, err
	}
	// A zero rate would never relay.
	if satPerVByte < 1 {
		satPerVByte = 1
	}
	return segwit.FeeRate(satPerVByte), nil
}
