// Package analysis defines the typed decision-analysis model: the fixed
// sequence of component kinds, their payload shapes, and the change
// notifications exchanged with the document sync layer.
package analysis

// Kind identifies one component of a decision analysis.
type Kind string

const (
	KindFrame          Kind = "frame"
	KindObjectives     Kind = "objectives"
	KindAlternatives   Kind = "alternatives"
	KindConsequences   Kind = "consequences"
	KindTradeoffs      Kind = "tradeoffs"
	KindRecommendation Kind = "recommendation"
	KindQuality        Kind = "quality"
)

// Order is the canonical component sequence. Document sections always
// appear in this order, and branch points are expressed against it.
var Order = []Kind{
	KindFrame,
	KindObjectives,
	KindAlternatives,
	KindConsequences,
	KindTradeoffs,
	KindRecommendation,
	KindQuality,
}

var headings = map[Kind]string{
	KindFrame:          "Problem Frame",
	KindObjectives:     "Objectives",
	KindAlternatives:   "Alternatives",
	KindConsequences:   "Consequences",
	KindTradeoffs:      "Tradeoffs",
	KindRecommendation: "Recommendation",
	KindQuality:        "Decision Quality",
}

// Heading returns the canonical document heading for the kind, without the
// markdown heading marker.
func (k Kind) Heading() string {
	return headings[k]
}

// Valid reports whether k is one of the canonical component kinds.
func (k Kind) Valid() bool {
	_, ok := headings[k]
	return ok
}

// Position returns the index of k in the canonical order, or -1.
func Position(k Kind) int {
	for i, kind := range Order {
		if kind == k {
			return i
		}
	}
	return -1
}

// KindForHeading resolves a heading title back to its component kind.
func KindForHeading(title string) (Kind, bool) {
	for kind, heading := range headings {
		if heading == title {
			return kind, true
		}
	}
	return "", false
}

// Rating scale bounds for consequence cells.
const (
	RatingMin = -2
	RatingMax = 2
)

// Quality score bounds (percent).
const (
	QualityMin = 0
	QualityMax = 100
)
