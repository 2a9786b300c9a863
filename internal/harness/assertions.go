package harness

import (
	"fmt"
	"sort"
)

// Verify checks a result against the scenario's expectations: the expected
// failure code, or the expected output arrays.
func Verify(s *Scenario, r *Result) error {
	if s.ExpectError != "" {
		if r.Err == nil {
			return fmt.Errorf("scenario %s: expected %s, but the pipeline succeeded", s.Name, s.ExpectError)
		}
		if code := failureCode(r.Err); code != s.ExpectError {
			return fmt.Errorf("scenario %s: expected %s, got %s (%v)", s.Name, s.ExpectError, code, r.Err)
		}
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("scenario %s: unexpected failure: %w", s.Name, r.Err)
	}
	if s.Data == nil {
		return nil
	}

	names := make([]string, 0, len(s.Data.Outputs))
	for name := range s.Data.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := compareArray(name, s.Data.Outputs[name], r.Outputs[name]); err != nil {
			return fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	return nil
}

func compareArray(name string, want, got []int64) error {
	if len(want) != len(got) {
		return fmt.Errorf("output %s: want %d elements, got %d (%v)", name, len(want), len(got), got)
	}
	for i := range want {
		if want[i] != got[i] {
			return fmt.Errorf("output %s[%d]: want %d, got %d", name, i, want[i], got[i])
		}
	}
	return nil
}
