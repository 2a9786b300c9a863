package testutil

import "fmt"

// FixedTokenGenerator returns predictable run tokens for store and CLI
// tests, where golden output must not depend on UUID randomness.
type FixedTokenGenerator struct {
	prefix string
	n      int
}

// NewFixedTokenGenerator creates a generator yielding prefix-1, prefix-2, ...
func NewFixedTokenGenerator(prefix string) *FixedTokenGenerator {
	return &FixedTokenGenerator{prefix: prefix}
}

// Generate returns the next fixed token.
func (g *FixedTokenGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
