package analysis

import (
	"encoding/json"
	"fmt"
)

// Objective is one row of the objectives table.
type Objective struct {
	Name    string `json:"name"`
	Measure string `json:"measure"`
}

// Alternative is one row of the alternatives table.
type Alternative struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RatingRow is one objective row of the consequence matrix. Scores are
// positional against Matrix.Alternatives and always within the ordinal
// scale; rows that failed to parse never reach this type.
type RatingRow struct {
	Objective string `json:"objective"`
	Scores    []int  `json:"scores"`
}

// Matrix is the consequence matrix: alternative columns, objective rows.
type Matrix struct {
	Alternatives []string    `json:"alternatives"`
	Rows         []RatingRow `json:"rows"`
}

// Tradeoff is one row of the tradeoffs table.
type Tradeoff struct {
	Topic string `json:"topic"`
	Notes string `json:"notes"`
}

// Recommendation is the recommended choice and its rationale.
type Recommendation struct {
	Choice    string `json:"choice"`
	Rationale string `json:"rationale"`
}

// QualityElement is one scored element of the decision-quality check.
type QualityElement struct {
	Element string `json:"element"`
	Score   int    `json:"score"`
}

// Payload carries the validated data for exactly one component. Only the
// field matching Kind is populated; the zero value for a kind means the
// component has not been started.
type Payload struct {
	Kind           Kind             `json:"kind"`
	Frame          string           `json:"frame,omitempty"`
	Objectives     []Objective      `json:"objectives,omitempty"`
	Alternatives   []Alternative    `json:"alternatives,omitempty"`
	Matrix         *Matrix          `json:"matrix,omitempty"`
	Tradeoffs      []Tradeoff       `json:"tradeoffs,omitempty"`
	Recommendation *Recommendation  `json:"recommendation,omitempty"`
	Quality        []QualityElement `json:"quality,omitempty"`
}

// Empty reports whether the payload holds no data for its kind.
func (p Payload) Empty() bool {
	switch p.Kind {
	case KindFrame:
		return p.Frame == ""
	case KindObjectives:
		return len(p.Objectives) == 0
	case KindAlternatives:
		return len(p.Alternatives) == 0
	case KindConsequences:
		return p.Matrix == nil || len(p.Matrix.Rows) == 0
	case KindTradeoffs:
		return len(p.Tradeoffs) == 0
	case KindRecommendation:
		return p.Recommendation == nil || (p.Recommendation.Choice == "" && p.Recommendation.Rationale == "")
	case KindQuality:
		return len(p.Quality) == 0
	}
	return true
}

// Validate checks payload invariants: rating cells on the closed ordinal
// scale, quality scores within percent bounds, matrix rows matching the
// alternative column count.
func (p Payload) Validate() error {
	if !p.Kind.Valid() {
		return fmt.Errorf("unknown component kind %q", p.Kind)
	}
	switch p.Kind {
	case KindConsequences:
		if p.Matrix == nil {
			return nil
		}
		for _, row := range p.Matrix.Rows {
			if len(row.Scores) != len(p.Matrix.Alternatives) {
				return fmt.Errorf("row %q has %d scores, want %d", row.Objective, len(row.Scores), len(p.Matrix.Alternatives))
			}
			for i, score := range row.Scores {
				if score < RatingMin || score > RatingMax {
					return fmt.Errorf("row %q column %q: score %d outside %d..%d", row.Objective, p.Matrix.Alternatives[i], score, RatingMin, RatingMax)
				}
			}
		}
	case KindQuality:
		for _, element := range p.Quality {
			if element.Score < QualityMin || element.Score > QualityMax {
				return fmt.Errorf("element %q: score %d outside %d..%d", element.Element, element.Score, QualityMin, QualityMax)
			}
		}
	}
	return nil
}

// Model is the full structured model: one payload per started component.
type Model map[Kind]Payload

// DecodePayload unmarshals a persisted payload for the given kind.
func DecodePayload(kind Kind, raw []byte) (Payload, error) {
	payload := Payload{Kind: kind}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	payload.Kind = kind
	return payload, nil
}

// EncodePayload marshals a payload for persistence.
func EncodePayload(payload Payload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", payload.Kind, err)
	}
	return raw, nil
}
