package record

import (
	"fmt"

	"github.com/m-lab/esmond-archiver/pkg/esmond/model"
	"github.com/m-lab/esmond-archiver/pkg/esmond/spec"
)

// raw stores a test's spec and result without interpretation.
type raw struct {
	base
	testType string
}

// Raw returns the Variant storing results of testType verbatim. It is used
// for test types without a dedicated mapping.
func Raw(testType string) Variant {
	return raw{testType: testType}
}

func (r raw) TestType() string {
	return r.testType
}

func (raw) EventTypes(model.TestSpec) []string {
	return []string{spec.EventRaw}
}

// AddMetadata flattens the test spec into pscheduler-<type>-<key> fields.
// List elements get their index appended to the key and objects are
// flattened recursively.
func (r raw) AddMetadata(md *model.Metadata, s model.TestSpec) error {
	if r.testType == "" {
		return ErrNoTestType
	}
	for k, v := range s {
		flatten(md, fmt.Sprintf("%s-%s-%s", spec.RawKeyPrefix, r.testType, k), v)
	}
	return nil
}

func (raw) BuildData(dp *model.DataPoint, r model.TestResult) {
	dp.Add(spec.EventRaw, r)
}

func flatten(md *model.Metadata, key string, v any) {
	switch t := v.(type) {
	case []any:
		for i, e := range t {
			md.Set(fmt.Sprintf("%s-%d", key, i), e)
		}
	case map[string]any:
		for k, e := range t {
			flatten(md, key+"-"+k, e)
		}
	default:
		md.Set(key, v)
	}
}
