package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden runs a scenario, verifies its expectations, and compares
// the rendered scheduled tree against testdata/golden/{name}.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario) {
	t.Helper()

	r, err := Run(s)
	if err != nil {
		t.Fatalf("run scenario: %v", err)
	}
	if err := Verify(s, r); err != nil {
		t.Fatal(err)
	}
	if r.Tree == nil {
		return // expected-failure scenarios have no tree to pin
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, []byte(r.Tree.Render()))
}
