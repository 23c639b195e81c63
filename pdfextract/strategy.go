// Package pdfextract extracts text from PDF byte buffers.
//
// Extraction is modeled as an ordered list of strategies tried in sequence:
//
//   - Layout: position-aware extraction that detects aligned grids and
//     renders them as markdown tables, preserving structure that a naive
//     text walk would flatten.
//   - Basic: content-stream operator walk (Tj/TJ/'/Td/T*), cheap and
//     tolerant of documents the layout pass cannot handle.
//
// The first strategy to return usable text wins. Callers that can tolerate
// empty output should treat a chain failure as "no usable text" rather than
// a hard error.
package pdfextract

import (
	"errors"
	"fmt"
	"log/slog"
)

// Result is the output of one extraction attempt.
type Result struct {
	Text      string
	Pages     int
	HasImages bool
	Strategy  string
}

// Strategy is a single PDF extraction approach.
type Strategy interface {
	Name() string
	Extract(data []byte) (*Result, error)
}

// Chain tries strategies in order and returns the first success.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewChain builds a chain over the given strategies.
func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// DefaultChain is the production order: layout-aware first, basic fallback.
func DefaultChain(logger *slog.Logger) *Chain {
	return NewChain(logger, NewLayout(), NewBasic())
}

// Extract runs the chain. It returns the first successful result, or the
// last error when every strategy fails.
func (c *Chain) Extract(data []byte) (*Result, error) {
	if len(c.strategies) == 0 {
		return nil, errors.New("pdfextract: no strategies configured")
	}
	var lastErr error
	for _, s := range c.strategies {
		res, err := s.Extract(data)
		if err != nil {
			c.logger.Debug("pdf extraction strategy failed", "strategy", s.Name(), "error", err)
			lastErr = fmt.Errorf("%s: %w", s.Name(), err)
			continue
		}
		res.Strategy = s.Name()
		return res, nil
	}
	return nil, lastErr
}
