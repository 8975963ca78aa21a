package scenario

import (
	"fmt"

	"github.com/arcreliability/engine/opserr"
)

// Validate checks bundle-load invariants: unique scenario ids, non-empty
// required fields, and severity/test_type within their enums. It fails
// loudly rather than silently dropping malformed scenarios.
func (b *Bundle) Validate() error {
	if b.Domain == "" {
		return newBundleError("bundle is missing a domain")
	}
	if b.Version == "" {
		return newBundleError("bundle is missing a version")
	}

	seen := make(map[string]bool, len(b.Scenarios))
	for i, s := range b.Scenarios {
		if s.ID == "" {
			return newBundleError(fmt.Sprintf("scenario at index %d is missing an id", i))
		}
		if seen[s.ID] {
			return newBundleError(fmt.Sprintf("duplicate scenario id %q in bundle %s/%s", s.ID, b.Domain, b.Version))
		}
		seen[s.ID] = true

		if s.Name == "" {
			return newBundleError(fmt.Sprintf("scenario %s is missing a name", s.ID))
		}
		if !validSeverities[s.Severity] {
			return newBundleError(fmt.Sprintf("scenario %s has invalid severity %q", s.ID, s.Severity))
		}
		if !validTestTypes[s.TestType] {
			return newBundleError(fmt.Sprintf("scenario %s has invalid test_type %q", s.ID, s.TestType))
		}
		if s.Category == "" {
			return newBundleError(fmt.Sprintf("scenario %s is missing a category", s.ID))
		}
		if s.ExpectedBehaviour == "" {
			return newBundleError(fmt.Sprintf("scenario %s is missing expected_behaviour", s.ID))
		}
		if len(s.FailureIndicators) == 0 {
			return newBundleError(fmt.Sprintf("scenario %s has no failure_indicators", s.ID))
		}
	}
	return nil
}

func newBundleError(msg string) *opserr.Error {
	return opserr.New("scenario", "validate", opserr.CodeInputUnparsable, msg)
}
