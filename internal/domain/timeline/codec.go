package timeline

import (
	"encoding/json"
	"fmt"
	"io"
)

// PlanFormatVersion is bumped when the persisted plan layout changes.
const PlanFormatVersion = 1

type planFile struct {
	Version int `json:"version"`
	EditPlan
}

// WritePlan encodes p as indented JSON. Float values are written in their
// shortest exact form, so ReadPlan restores a plan equal to p.
func WritePlan(w io.Writer, p EditPlan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	if p.RemovalSummary == nil {
		p.RemovalSummary = map[Reason]float64{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(planFile{Version: PlanFormatVersion, EditPlan: p})
}

func ReadPlan(r io.Reader) (EditPlan, error) {
	var f planFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return EditPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	if f.Version != PlanFormatVersion {
		return EditPlan{}, fmt.Errorf("unsupported plan version %d", f.Version)
	}
	if f.RemovalSummary == nil {
		f.RemovalSummary = map[Reason]float64{}
	}
	if err := f.Validate(); err != nil {
		return EditPlan{}, fmt.Errorf("invalid plan: %w", err)
	}
	return f.EditPlan, nil
}

// MarshalSpans and UnmarshalSpans persist classifier output between stages.
func MarshalSpans(spans []Span) ([]byte, error) {
	if spans == nil {
		spans = []Span{}
	}
	return json.MarshalIndent(spans, "", "  ")
}

func UnmarshalSpans(b []byte) ([]Span, error) {
	var spans []Span
	if err := json.Unmarshal(b, &spans); err != nil {
		return nil, fmt.Errorf("decode spans: %w", err)
	}
	for i, s := range spans {
		if !s.Reason.Valid() {
			return nil, fmt.Errorf("span %d: unknown reason %q", i, s.Reason)
		}
		if !s.Range.Valid() {
			return nil, fmt.Errorf("span %d: invalid range %s", i, s.Range)
		}
	}
	return spans, nil
}
