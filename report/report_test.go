package report

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/gtfsfeed/model"
)

func sampleFindings() []model.Finding {
	return []model.Finding{
		model.Warning(model.KindOutsideRegion, model.EntityStop, "s2", "", "outside"),
		model.Fatal(model.KindTimeTravel, model.EntityStopTime, "t1#2", "arrival_time", "time travel"),
		model.Warning(model.KindOrphan, model.EntityRoute, "r9", "", "no trips"),
		model.Fatal(model.KindDanglingReference, model.EntityTrip, "t1", "route_id", "unknown route"),
		model.Warning(model.KindOutsideRegion, model.EntityStop, "s1", "", "outside"),
		model.Fatal(model.KindDanglingReference, model.EntityTrip, "t1", "service_id", "unknown service"),
	}
}

func TestGenerateVerdict(t *testing.T) {
	assert.Equal(t, VerdictPass, Generate(nil, Meta{}).Verdict)
	assert.True(t, Generate(nil, Meta{}).Passed())

	warnings := []model.Finding{
		model.Warning(model.KindOutsideRegion, model.EntityStop, "s", "", "outside"),
	}
	r := Generate(warnings, Meta{})
	assert.Equal(t, VerdictPassWithWarnings, r.Verdict)
	assert.True(t, r.Passed())

	r = Generate(sampleFindings(), Meta{})
	assert.Equal(t, VerdictFail, r.Verdict)
	assert.False(t, r.Passed())
}

func TestGenerateOrder(t *testing.T) {
	r := Generate(sampleFindings(), Meta{})

	ids := []string{}
	for _, f := range r.Findings {
		ids = append(ids, f.Severity.String()+" "+f.EntityType+" "+f.EntityID+" "+f.Field)
	}
	assert.Equal(t, []string{
		"fatal stop_times t1#2 arrival_time",
		"fatal trips t1 route_id",
		"fatal trips t1 service_id",
		"warning routes r9 ",
		"warning stops s1 ",
		"warning stops s2 ",
	}, ids)
}

func TestGenerateIndependentOfInputOrder(t *testing.T) {
	meta := Meta{InputSHA256: "abc"}
	expected := Generate(sampleFindings(), meta)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := sampleFindings()
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, expected, Generate(shuffled, meta))
	}
}

func TestGenerateDoesNotModifyInput(t *testing.T) {
	findings := sampleFindings()
	Generate(findings, Meta{})
	assert.Equal(t, sampleFindings(), findings)
}

func TestGenerateSummary(t *testing.T) {
	r := Generate(sampleFindings(), Meta{})

	assert.Equal(t, 3, r.Summary.Fatal)
	assert.Equal(t, 3, r.Summary.Warning)
	assert.Equal(t, &Count{Fatal: 0, Warning: 2}, r.Summary.ByEntity[model.EntityStop])
	assert.Equal(t, &Count{Fatal: 2, Warning: 0}, r.Summary.ByEntity[model.EntityTrip])
	assert.Equal(t, &Count{Fatal: 2, Warning: 0}, r.Summary.ByKind[model.KindDanglingReference])
	assert.Equal(t, 4, len(r.Summary.ByEntity))
}

func TestGenerateID(t *testing.T) {
	a := Generate(sampleFindings(), Meta{InputSHA256: "abc"})
	b := Generate(nil, Meta{InputSHA256: "abc"})
	c := Generate(nil, Meta{InputSHA256: "abd"})
	d := Generate(nil, Meta{InputSHA256: "abc", Strict: true})

	parsed, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
	assert.NotEqual(t, a.ID, d.ID)
}

func TestWriteJSON(t *testing.T) {
	r := Generate(sampleFindings(), Meta{
		Source:      "feed.zip",
		InputSHA256: "abc",
		Ignored:     []string{"fare_rules.txt"},
	})

	buf := &bytes.Buffer{}
	require.NoError(t, r.WriteJSON(buf))

	decoded := &Report{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), decoded))
	assert.Equal(t, r, decoded)

	raw := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &raw))
	assert.Equal(t, "Fail", raw["verdict"])
	assert.Equal(t, float64(3), raw["summary"].(map[string]interface{})["fatal"])
	first := raw["findings"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "fatal", first["severity"])
	assert.Equal(t, "TimeTravel", first["kind"])

	// Reproducible byte for byte
	again := &bytes.Buffer{}
	require.NoError(t, Generate(sampleFindings(), Meta{
		Source:      "feed.zip",
		InputSHA256: "abc",
		Ignored:     []string{"fare_rules.txt"},
	}).WriteJSON(again))
	assert.Equal(t, buf.String(), again.String())
}

func TestWriteJSONEmpty(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Generate(nil, Meta{}).WriteJSON(buf))
	assert.Contains(t, buf.String(), `"findings": []`)
	assert.Contains(t, buf.String(), `"verdict": "Pass"`)
}

func TestWriteText(t *testing.T) {
	r := Generate(sampleFindings(), Meta{
		Source:      "feed.zip",
		InputSHA256: "abc",
		Strict:      true,
		Ignored:     []string{"fare_rules.txt"},
	})

	buf := &bytes.Buffer{}
	require.NoError(t, r.WriteText(buf))
	text := buf.String()

	assert.True(t, strings.HasPrefix(text, "Report "+r.ID+"\n"))
	assert.Contains(t, text, "Source:   feed.zip\n")
	assert.Contains(t, text, "Verdict:  Fail (strict)\n")
	assert.Contains(t, text, "Findings: 3 fatal, 3 warning\n")
	assert.Contains(t, text, "Ignored files: fare_rules.txt\n")
	assert.Contains(t, text, "fatal [trips t1.route_id] DanglingReference: unknown route\n")
	assert.Contains(t, text, "warning [stops s1] OutsideRegion: outside\n")
	assert.True(t, strings.Index(text, "t1#2") < strings.Index(text, "s1]"))
}
