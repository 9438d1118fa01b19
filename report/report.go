// Package report summarizes the findings of a pipeline run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"

	"tidbyt.dev/gtfsfeed/model"
)

type Verdict string

const (
	VerdictPass             Verdict = "Pass"
	VerdictPassWithWarnings Verdict = "PassWithWarnings"
	VerdictFail             Verdict = "Fail"
)

// Report IDs are name based UUIDs within this namespace.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://tidbyt.dev/gtfsfeed/report"))

// What the findings were produced from.
type Meta struct {
	Source string

	// Hex SHA-256 of the input files.
	InputSHA256 string

	Strict bool

	// Files present in the input but not part of the feed.
	Ignored []string

	// feed_version of the assembled feed, if any.
	FeedVersion string
}

type Count struct {
	Fatal   int `json:"fatal"`
	Warning int `json:"warning"`
}

func (c *Count) add(s model.Severity) {
	if s == model.SeverityFatal {
		c.Fatal++
	} else {
		c.Warning++
	}
}

type Summary struct {
	Count
	ByEntity map[string]*Count     `json:"by_entity"`
	ByKind   map[model.Kind]*Count `json:"by_kind"`
}

type Report struct {
	ID           string          `json:"id"`
	Source       string          `json:"source,omitempty"`
	InputSHA256  string          `json:"input_sha256"`
	FeedVersion  string          `json:"feed_version,omitempty"`
	Strict       bool            `json:"strict"`
	Verdict      Verdict         `json:"verdict"`
	Summary      Summary         `json:"summary"`
	IgnoredFiles []string        `json:"ignored_files,omitempty"`
	Findings     []model.Finding `json:"findings"`
}

// Builds a report. The result depends only on the findings as a set
// and on meta, so reruns over the same input produce identical
// reports.
func Generate(findings []model.Finding, meta Meta) *Report {
	sorted := append([]model.Finding{}, findings...)
	sort.Slice(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})

	summary := Summary{
		ByEntity: map[string]*Count{},
		ByKind:   map[model.Kind]*Count{},
	}
	for _, f := range sorted {
		summary.add(f.Severity)
		if summary.ByEntity[f.EntityType] == nil {
			summary.ByEntity[f.EntityType] = &Count{}
		}
		summary.ByEntity[f.EntityType].add(f.Severity)
		if summary.ByKind[f.Kind] == nil {
			summary.ByKind[f.Kind] = &Count{}
		}
		summary.ByKind[f.Kind].add(f.Severity)
	}

	verdict := VerdictPass
	if summary.Fatal > 0 {
		verdict = VerdictFail
	} else if summary.Warning > 0 {
		verdict = VerdictPassWithWarnings
	}

	name := fmt.Sprintf("%s;strict=%t", meta.InputSHA256, meta.Strict)

	return &Report{
		ID:           uuid.NewSHA1(namespace, []byte(name)).String(),
		Source:       meta.Source,
		InputSHA256:  meta.InputSHA256,
		FeedVersion:  meta.FeedVersion,
		Strict:       meta.Strict,
		Verdict:      verdict,
		Summary:      summary,
		IgnoredFiles: meta.Ignored,
		Findings:     sorted,
	}
}

// Fatal first, then by entity type, entity id, kind, field and
// message.
func less(a, b model.Finding) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if a.EntityType != b.EntityType {
		return a.EntityType < b.EntityType
	}
	if a.EntityID != b.EntityID {
		return a.EntityID < b.EntityID
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Field != b.Field {
		return a.Field < b.Field
	}
	return a.Message < b.Message
}

func (r *Report) Passed() bool {
	return r.Verdict != VerdictFail
}

func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// Writes a human readable summary followed by every finding.
func (r *Report) WriteText(w io.Writer) error {
	b := &strings.Builder{}

	fmt.Fprintf(b, "Report %s\n", r.ID)
	if r.Source != "" {
		fmt.Fprintf(b, "Source:   %s\n", r.Source)
	}
	if r.FeedVersion != "" {
		fmt.Fprintf(b, "Version:  %s\n", r.FeedVersion)
	}
	verdict := string(r.Verdict)
	if r.Strict {
		verdict += " (strict)"
	}
	fmt.Fprintf(b, "Verdict:  %s\n", verdict)
	fmt.Fprintf(b, "Findings: %d fatal, %d warning\n", r.Summary.Fatal, r.Summary.Warning)

	if len(r.Summary.ByEntity) > 0 {
		entities := make([]string, 0, len(r.Summary.ByEntity))
		for e := range r.Summary.ByEntity {
			entities = append(entities, e)
		}
		sort.Strings(entities)

		b.WriteString("\n")
		for _, e := range entities {
			c := r.Summary.ByEntity[e]
			fmt.Fprintf(b, "  %-12s %5d fatal %5d warning\n", e, c.Fatal, c.Warning)
		}
	}

	if len(r.IgnoredFiles) > 0 {
		fmt.Fprintf(b, "\nIgnored files: %s\n", strings.Join(r.IgnoredFiles, ", "))
	}

	if len(r.Findings) > 0 {
		b.WriteString("\n")
		for _, f := range r.Findings {
			b.WriteString(f.String())
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
