package docgen

import (
	"strings"
	"testing"
	"time"

	"crux/api/internal/analysis"
)

func sampleModel() analysis.Model {
	return analysis.Model{
		analysis.KindFrame: {
			Kind:  analysis.KindFrame,
			Frame: "Choose a queueing backbone for the ingest pipeline.",
		},
		analysis.KindObjectives: {
			Kind: analysis.KindObjectives,
			Objectives: []analysis.Objective{
				{Name: "Latency", Measure: "p99 under 50ms"},
				{Name: "Cost", Measure: "monthly infra spend"},
			},
		},
		analysis.KindAlternatives: {
			Kind: analysis.KindAlternatives,
			Alternatives: []analysis.Alternative{
				{Name: "Kafka", Description: "Managed Kafka cluster"},
				{Name: "NATS", Description: "Self-hosted NATS"},
			},
		},
		analysis.KindConsequences: {
			Kind: analysis.KindConsequences,
			Matrix: &analysis.Matrix{
				Alternatives: []string{"Kafka", "NATS"},
				Rows: []analysis.RatingRow{
					{Objective: "Latency", Scores: []int{1, 2}},
					{Objective: "Cost", Scores: []int{-2, 0}},
				},
			},
		},
		analysis.KindTradeoffs: {
			Kind: analysis.KindTradeoffs,
			Tradeoffs: []analysis.Tradeoff{
				{Topic: "Ops burden", Notes: "NATS needs in-house expertise"},
			},
		},
		analysis.KindRecommendation: {
			Kind: analysis.KindRecommendation,
			Recommendation: &analysis.Recommendation{
				Choice:    "NATS",
				Rationale: "Latency wins outweigh the operational cost.",
			},
		},
		analysis.KindQuality: {
			Kind: analysis.KindQuality,
			Quality: []analysis.QualityElement{
				{Element: "Clear frame", Score: 90},
				{Element: "Good alternatives", Score: 70},
			},
		},
	}
}

func TestGenerateSectionEmptyRendersPlaceholder(t *testing.T) {
	g := New()
	for _, kind := range analysis.Order {
		body, err := g.GenerateSection(kind, analysis.Payload{Kind: kind})
		if err != nil {
			t.Fatalf("GenerateSection(%s) error = %v", kind, err)
		}
		if body != Placeholder {
			t.Errorf("GenerateSection(%s) = %q, want placeholder", kind, body)
		}
	}
}

func TestGenerateSectionConsequencesScores(t *testing.T) {
	g := New()
	body, err := g.GenerateSection(analysis.KindConsequences, sampleModel()[analysis.KindConsequences])
	if err != nil {
		t.Fatalf("GenerateSection() error = %v", err)
	}
	want := "| Objective | Kafka | NATS |\n" +
		"| --- | --- | --- |\n" +
		"| Latency | +1 | +2 |\n" +
		"| Cost | -2 | 0 |"
	if body != want {
		t.Errorf("GenerateSection() =\n%q\nwant\n%q", body, want)
	}
}

func TestGenerateSectionRecommendation(t *testing.T) {
	g := New()
	body, err := g.GenerateSection(analysis.KindRecommendation, sampleModel()[analysis.KindRecommendation])
	if err != nil {
		t.Fatalf("GenerateSection() error = %v", err)
	}
	want := "**Choice:** NATS\n\nLatency wins outweigh the operational cost."
	if body != want {
		t.Errorf("GenerateSection() = %q, want %q", body, want)
	}
}

func TestGenerateSectionUnknownKind(t *testing.T) {
	g := New()
	if _, err := g.GenerateSection(analysis.Kind("bogus"), analysis.Payload{}); err == nil {
		t.Fatal("GenerateSection() expected error for unknown kind")
	}
}

func TestGenerateSectionEscapesPipesInCells(t *testing.T) {
	g := New()
	body, err := g.GenerateSection(analysis.KindObjectives, analysis.Payload{
		Kind: analysis.KindObjectives,
		Objectives: []analysis.Objective{
			{Name: "Cost | Risk", Measure: `USD \ month`},
		},
	})
	if err != nil {
		t.Fatalf("GenerateSection() error = %v", err)
	}
	if !strings.Contains(body, `| Cost \| Risk | USD \\ month |`) {
		t.Errorf("cell values not escaped:\n%s", body)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := New()
	model := sampleModel()
	opts := Options{Format: FormatFull, IncludeEmptySections: true}

	first, err := g.Generate("Queue choice", model, opts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := g.Generate("Queue choice", model, opts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if first != second {
		t.Error("Generate() output differs between identical calls")
	}
}

func TestGenerateSectionBodiesMatchFullDocument(t *testing.T) {
	g := New()
	model := sampleModel()
	doc, err := g.Generate("Queue choice", model, Options{Format: FormatFull, IncludeEmptySections: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	for _, kind := range analysis.Order {
		body, err := g.GenerateSection(kind, model[kind])
		if err != nil {
			t.Fatalf("GenerateSection(%s) error = %v", kind, err)
		}
		fragment := "## " + kind.Heading() + "\n\n" + body
		if !strings.Contains(doc, fragment) {
			t.Errorf("full document missing exact section fragment for %s", kind)
		}
	}
}

func TestGenerateSummaryOmitsDetailSections(t *testing.T) {
	g := New()
	doc, err := g.Generate("Queue choice", sampleModel(), Options{Format: FormatSummary})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, heading := range []string{"Problem Frame", "Recommendation", "Decision Quality"} {
		if !strings.Contains(doc, "## "+heading) {
			t.Errorf("summary missing heading %q", heading)
		}
	}
	for _, heading := range []string{"Objectives", "Alternatives", "Consequences", "Tradeoffs"} {
		if strings.Contains(doc, "## "+heading) {
			t.Errorf("summary should not contain heading %q", heading)
		}
	}
}

func TestGenerateMetadataBlock(t *testing.T) {
	g := New()
	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	doc, err := g.Generate("Queue choice", sampleModel(), Options{
		Format:          FormatFull,
		IncludeMetadata: true,
		Status:          "active",
		Version:         7,
		Timestamp:       ts,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := "> Status: active · Version: 7 · Updated: 2026-03-14T09:30:00Z"
	if !strings.Contains(doc, want) {
		t.Errorf("document missing metadata block %q", want)
	}

	exported, err := g.Generate("Queue choice", sampleModel(), Options{
		Format:          FormatExport,
		IncludeMetadata: true,
		Status:          "active",
		Version:         7,
		Timestamp:       ts,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if strings.Contains(exported, "> Status:") {
		t.Error("export format should not contain metadata block")
	}
}

func TestGenerateSkipsEmptySectionsWhenNotIncluded(t *testing.T) {
	g := New()
	model := analysis.Model{
		analysis.KindFrame: {Kind: analysis.KindFrame, Frame: "Only the frame exists."},
	}
	doc, err := g.Generate("Sparse", model, Options{Format: FormatFull})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(doc, "## Problem Frame") {
		t.Error("document missing started section")
	}
	if strings.Contains(doc, "## Objectives") {
		t.Error("document should omit empty sections when IncludeEmptySections is false")
	}
}
