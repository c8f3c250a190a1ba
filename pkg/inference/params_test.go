package inference

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 1.0, p.Temperature)
	assert.Equal(t, 1.0, p.TopP)
	assert.Equal(t, 1, p.N)
	assert.Nil(t, p.MaxCompletionTokens)
	assert.Nil(t, p.Seed)
	require.NoError(t, p.Validate())
}

func TestParamsValidateRanges(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Params)
		wantField string
	}{
		{"temperature too high", func(p *Params) { p.Temperature = 2.5 }, "temperature"},
		{"temperature negative", func(p *Params) { p.Temperature = -0.1 }, "temperature"},
		{"temperature at max", func(p *Params) { p.Temperature = 2.0 }, ""},
		{"top_p too high", func(p *Params) { p.TopP = 1.5 }, "top_p"},
		{"top_p zero ok", func(p *Params) { p.TopP = 0 }, ""},
		{"n zero", func(p *Params) { p.N = 0 }, "n"},
		{"n negative", func(p *Params) { p.N = -3 }, "n"},
		{"frequency penalty out of range", func(p *Params) { p.FrequencyPenalty = ptr(2.5) }, "frequency_penalty"},
		{"frequency penalty at bound", func(p *Params) { p.FrequencyPenalty = ptr(-2.0) }, ""},
		{"presence penalty out of range", func(p *Params) { p.PresencePenalty = ptr(-2.1) }, "presence_penalty"},
		{"max tokens zero", func(p *Params) { p.MaxCompletionTokens = ptrInt(0) }, "max_completion_tokens"},
		{"top logprobs too high", func(p *Params) { p.TopLogProbs = ptrInt(21) }, "top_logprobs"},
		{"top logprobs zero ok", func(p *Params) { p.TopLogProbs = ptrInt(0) }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestParamsValidateMetadata(t *testing.T) {
	p := DefaultParams()
	p.Metadata = map[string]string{"run": "eval-7"}
	require.NoError(t, p.Validate())

	tooMany := map[string]string{}
	for i := 0; i < maxMetadataEntries+1; i++ {
		tooMany[strings.Repeat("k", i+1)] = "v"
	}
	p.Metadata = tooMany
	var verr *ValidationError
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "metadata", verr.Field)

	p.Metadata = map[string]string{strings.Repeat("k", maxMetadataKeyLength+1): "v"}
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "metadata", verr.Field)

	p.Metadata = map[string]string{"k": strings.Repeat("v", maxMetadataValueLength+1)}
	require.ErrorAs(t, p.Validate(), &verr)
	assert.Equal(t, "metadata", verr.Field)
}

func TestStopSequencesUnmarshal(t *testing.T) {
	var s StopSequences
	require.NoError(t, json.Unmarshal([]byte(`"END"`), &s))
	assert.Equal(t, StopSequences{"END"}, s)

	require.NoError(t, json.Unmarshal([]byte(`["a", "b"]`), &s))
	assert.Equal(t, StopSequences{"a", "b"}, s)

	require.Error(t, json.Unmarshal([]byte(`42`), &s))
}

func TestStopSequencesEncodeAsList(t *testing.T) {
	// A bare string and a one-element list must produce the same
	// serialized params, so they hit the same cache entry.
	var fromString, fromList Params
	require.NoError(t, json.Unmarshal([]byte(`{"temperature":1,"top_p":1,"n":1,"stop":"END"}`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`{"temperature":1,"top_p":1,"n":1,"stop":["END"]}`), &fromList))

	a, err := json.Marshal(fromString)
	require.NoError(t, err)
	b, err := json.Marshal(fromList)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func ptr(f float64) *float64 { return &f }
func ptrInt(i int) *int      { return &i }
