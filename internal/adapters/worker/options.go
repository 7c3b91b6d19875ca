// Package worker runs indexed jobs on a bounded set of goroutines.
package worker

import (
	"github.com/okian/delaycast/pkg/logger"
	"github.com/okian/delaycast/pkg/metrics"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithName sets the pool name for identification and logging.
func WithName(name string) Option {
	return func(p *Pool) {
		if name != "" {
			p.name = name
		}
	}
}

// WithLogger sets a custom logger for the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records job metrics on m instead of the global manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Pool) {
		if m != nil {
			p.metrics = m
		}
	}
}
