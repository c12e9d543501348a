package errors

import (
	"context"
)

// Strategy is a named way of producing a result. Chains try strategies
// in order and stop at the first success.
type Strategy struct {
	Name string
	Run  func(ctx context.Context) ([]byte, error)
}

// Chain is an ordered list of fallback strategies.
type Chain struct {
	strategies []Strategy
}

// NewChain creates a chain from the given strategies. Order matters:
// earlier strategies are preferred.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Append adds a strategy at the end of the chain.
func (c *Chain) Append(s Strategy) {
	c.strategies = append(c.strategies, s)
}

// Len returns the number of strategies in the chain.
func (c *Chain) Len() int {
	return len(c.strategies)
}

// Execute runs strategies in order until one succeeds. It returns the
// first successful result together with the name of the strategy that
// produced it. If every strategy fails, the last failure is returned.
// Context cancellation stops the chain immediately.
func (c *Chain) Execute(ctx context.Context) ([]byte, string, error) {
	if len(c.strategies) == 0 {
		return nil, "", NewConfigError("chain", "no strategies configured")
	}

	var lastErr error
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			return nil, "", NewCancelledError("", s.Name)
		}

		result, err := s.Run(ctx)
		if err == nil {
			return result, s.Name, nil
		}
		lastErr = err
	}

	return nil, "", lastErr
}
