package vision

import (
	"context"
	"log/slog"
)

// Chain tries multiple analyzers in order until one succeeds.
type Chain struct {
	analyzers []Analyzer
	logger    *slog.Logger
}

// NewChain creates an analyzer chain.
// At least one analyzer is required.
func NewChain(analyzers ...Analyzer) (*Chain, error) {
	if len(analyzers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{
		analyzers: analyzers,
		logger:    slog.Default().With("component", "vision.chain"),
	}, nil
}

// NewChainWithLogger creates an analyzer chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, analyzers ...Analyzer) (*Chain, error) {
	chain, err := NewChain(analyzers...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "vision.chain")
	return chain, nil
}

// Analyze tries each analyzer until one succeeds.
// Cancellation stops the chain immediately and is returned as is.
func (c *Chain) Analyze(ctx context.Context, image []byte, mimeType string) (*Result, error) {
	var errors []error

	for i, a := range c.analyzers {
		res, err := a.Analyze(ctx, image, mimeType)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					"provider_index", i,
				)
			}
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		errors = append(errors, err)
		c.logger.Warn("provider failed, trying next",
			"provider_index", i,
			"error", err,
		)
	}

	return nil, &ChainError{Errors: errors}
}

// Analyzers returns the analyzers in the chain.
func (c *Chain) Analyzers() []Analyzer {
	return c.analyzers
}

// Verify Chain implements Analyzer at compile time.
var _ Analyzer = (*Chain)(nil)
