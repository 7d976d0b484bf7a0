package record

import (
	"errors"
	"fmt"

	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// ErrUnsupported is returned by Select when the policy only allows mapped
// records and the test type has no dedicated mapping.
var ErrUnsupported = errors.New("no mapping for test type")

// Select returns the Variant to use for testType under policy, and whether
// the verbatim result must be added to the mapped record. An empty policy is
// treated as spec.PreferMapped.
func Select(policy spec.FormattingPolicy, testType string) (Variant, bool, error) {
	v, mapped := Lookup(testType)
	switch policy {
	case "", spec.PreferMapped:
		if mapped {
			return v, false, nil
		}
		return Raw(testType), false, nil
	case spec.MappedAndRaw:
		if mapped {
			return v, true, nil
		}
		return Raw(testType), false, nil
	case spec.MappedOnly:
		if mapped {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("%w: %q", ErrUnsupported, testType)
	case spec.RawOnly:
		return Raw(testType), false, nil
	default:
		return nil, false, &ConfigurationError{
			Msg: fmt.Sprintf("unknown data formatting policy %q", policy),
		}
	}
}
