package evaluation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestAccessors(t *testing.T) {
	assert.Equal(t, 5, GetScore(Bare(5)))
	assert.Equal(t, 5, GetScore(Explained(5, "x")))
	assert.Equal(t, "", GetExplanation(Bare(5)))
	assert.Equal(t, "x", GetExplanation(Explained(5, "x")))

	// A bare category never exposes an explanation, even if one was set by hand.
	assert.Equal(t, "", GetExplanation(Category{Score: 5, Explanation: "stray"}))
}

func TestCategory_JSONKeepsRepresentation(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{
		"security": {"score": 92, "explanation": "no injection vectors"},
		"quality": 80,
		"summary": "solid"
	}`), &r)
	require.NoError(t, err)

	assert.Equal(t, "solid", r.Summary)
	assert.Equal(t, Explained(92, "no injection vectors"), r.Scores["security"])
	assert.Equal(t, Bare(80), r.Scores["quality"])

	out, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"security": {"score": 92, "explanation": "no injection vectors"},
		"quality": 80,
		"summary": "solid"
	}`, string(out))
}

func TestCategory_JSONRejectsStrings(t *testing.T) {
	var r Result
	err := json.Unmarshal([]byte(`{"security": "high"}`), &r)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `category "security"`)
}

func TestResult_YAML(t *testing.T) {
	src := `
security:
  score: 97
  explanation: excellent coverage
credentials: 94
summary: gold standard
`
	var r Result
	require.NoError(t, yaml.Unmarshal([]byte(src), &r))
	assert.Equal(t, Explained(97, "excellent coverage"), r.Scores["security"])
	assert.Equal(t, Bare(94), r.Scores["credentials"])
	assert.Equal(t, "gold standard", r.Summary)
}

func TestResult_Overall(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   int
	}{
		{name: "empty", result: Result{}, want: 0},
		{
			name: "mixed representations",
			result: NewResult("", map[string]Category{
				"security":      Explained(92, "a"),
				"compatibility": Bare(88),
				"quality":       Bare(95),
			}),
			want: 92,
		},
		{
			name: "rounds half up",
			result: NewResult("", map[string]Category{
				"a": Bare(1),
				"b": Bare(2),
			}),
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Overall())
		})
	}
}

func TestResult_CloneIsIndependent(t *testing.T) {
	r := NewResult("s", map[string]Category{"security": Bare(10)})
	c := r.Clone()
	c.Scores["security"] = Bare(99)
	assert.Equal(t, 10, r.Scores["security"].Score)
}

func TestLookup(t *testing.T) {
	s, err := Lookup(" Risk5 ")
	require.NoError(t, err)
	assert.Equal(t, Risk5, s.Name)
	assert.Equal(t, HigherIsRiskier, s.Direction)

	_, err = Lookup("safety4")
	assert.Error(t, err)

	assert.Equal(t, Safety5, Default().Name)
}

func TestSchema_ZeroAndValidate(t *testing.T) {
	s := Default()
	zero := s.Zero()
	require.NoError(t, s.Validate(zero))
	assert.Len(t, zero.Scores, 5)
	assert.Equal(t, 0, zero.Overall())

	missing := zero.Clone()
	delete(missing.Scores, "networkEgress")
	assert.ErrorContains(t, s.Validate(missing), "missing category")

	outOfRange := zero.Clone()
	outOfRange.Scores["quality"] = Bare(101)
	assert.ErrorContains(t, s.Validate(outOfRange), "out of range")

	unknown := zero.Clone()
	unknown.Scores["purposeCapability"] = Bare(1)
	assert.ErrorContains(t, s.Validate(unknown), "unknown category")

	for i := 0; i < 10; i++ {
		several := zero.Clone()
		several.Scores["zeta"] = Bare(1)
		several.Scores["alpha"] = Bare(1)
		assert.ErrorContains(t, s.Validate(several), `unknown category "alpha"`)
	}
}

func TestCategory_FractionalScores(t *testing.T) {
	tests := []struct {
		name     string
		json     string
		expected Category
	}{
		{name: "bare", json: `85.5`, expected: Bare(86)},
		{name: "detailed", json: `{"score":85.5,"explanation":"ok"}`, expected: Explained(86, "ok")},
		{name: "detailed rounds down", json: `{"score":70.4,"explanation":"ok"}`, expected: Explained(70, "ok")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Category
			require.NoError(t, json.Unmarshal([]byte(tt.json), &c))
			assert.Equal(t, tt.expected, c)
		})
	}

	var r struct {
		Bare     Category `yaml:"bare"`
		Detailed Category `yaml:"detailed"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("bare: 85.5\ndetailed:\n  score: 85.5\n  explanation: ok\n"), &r))
	assert.Equal(t, Bare(86), r.Bare)
	assert.Equal(t, Explained(86, "ok"), r.Detailed)
}

func TestSchema_Grade(t *testing.T) {
	safer := Default()
	assert.Equal(t, ToneGood, safer.Grade(90).Tone)
	assert.Equal(t, ToneWarning, safer.Grade(89).Tone)
	assert.Equal(t, ToneWarning, safer.Grade(70).Tone)
	assert.Equal(t, ToneBad, safer.Grade(69).Tone)

	risk, err := Lookup("risk5")
	require.NoError(t, err)
	tests := []struct {
		score int
		label string
	}{
		{0, "Minimal"}, {10, "Minimal"}, {11, "Low"}, {25, "Low"},
		{26, "Moderate"}, {45, "Moderate"}, {46, "High"}, {65, "High"},
		{66, "Very High"}, {85, "Very High"}, {86, "Critical"}, {100, "Critical"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.label, risk.Grade(tt.score).Label, "score %d", tt.score)
	}
}

func TestSchema_Label(t *testing.T) {
	assert.Equal(t, "Network Egress", Default().Label("networkEgress"))
	assert.Equal(t, "unknownKey", Default().Label("unknownKey"))
}
