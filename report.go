package dirty

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ReportEntry is one changed property: the baseline value, the current
// raw value, and whether the change surfaced from a nested tracked
// value rather than a direct assignment.
type ReportEntry struct {
	Property string `json:"property"`
	Baseline any    `json:"baseline"`
	Current  any    `json:"current"`
	Nested   bool   `json:"nested,omitempty"`
}

// Report is a serializable snapshot of a handler's differential state.
type Report struct {
	Entity      string        `json:"entity"`
	Token       string        `json:"token,omitempty"`
	Dirty       bool          `json:"dirty"`
	GeneratedAt time.Time     `json:"generated_at"`
	Entries     []ReportEntry `json:"entries"`
}

// BuildReport renders state into a report. Container handlers are not
// reportable; their only signal is the dirty flag.
func BuildReport(state State) (*Report, error) {
	if state == nil {
		return nil, &StateError{Op: "report", Detail: "state is required"}
	}
	original, err := state.OriginalState()
	if err != nil {
		return nil, err
	}
	diff, err := state.DifferentialState()
	if err != nil {
		return nil, err
	}

	report := &Report{
		Entity:      typeName(state.Instance()),
		Dirty:       state.IsDirty(),
		GeneratedAt: time.Now().UTC(),
		Entries:     make([]ReportEntry, 0, len(diff)),
	}
	if wrapper, ok := state.Wrapper().(*Wrapper); ok {
		report.Token = wrapper.token.String()
	}

	properties := make([]string, 0, len(diff))
	for property := range diff {
		properties = append(properties, property)
	}
	sort.Strings(properties)

	for _, property := range properties {
		current := diff[property]
		nested := wrappedValue(current)
		if nested {
			raw, err := reportRaw(current)
			if err != nil {
				return nil, err
			}
			current = raw
		}
		report.Entries = append(report.Entries, ReportEntry{
			Property: property,
			Baseline: original[property],
			Current:  current,
			Nested:   nested,
		})
	}
	return report, nil
}

func reportRaw(value any) (any, error) {
	switch v := value.(type) {
	case *Wrapper:
		return v.Instance()
	case *trackedList:
		return v.state.raw, nil
	case *trackedSet:
		return v.state.raw, nil
	case *trackedMap:
		return v.state.raw, nil
	}
	return value, nil
}

// ToJSON renders the report as indented JSON.
func (r *Report) ToJSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("dirty: nil report")
	}
	return json.MarshalIndent(r, "", "  ")
}

// ReportFromJSON parses a report produced by ToJSON.
func ReportFromJSON(data []byte) (*Report, error) {
	report := &Report{}
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("dirty: parsing report: %w", err)
	}
	return report, nil
}
