package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsClamp(t *testing.T) {
	s := Settings{}.WithTemperature(3).WithTopP(-1)
	assert.Equal(t, 2.0, s.Temperature)
	assert.Equal(t, 0.0, s.TopP)

	s = s.WithTemperature(0.35).WithTopP(0.5)
	assert.Equal(t, 0.35, s.Temperature)
	assert.Equal(t, 0.5, s.TopP)
}

func TestSettingsParamsAreCopies(t *testing.T) {
	s := Settings{Model: "model-a", Temperature: 0.7, TopP: 1}
	p := s.Params()
	require.NotNil(t, p.Temperature)
	require.NotNil(t, p.TopP)

	*p.Temperature = 1.5
	assert.Equal(t, 0.7, s.Temperature)
	assert.Equal(t, "model-a", p.Model)
	assert.Equal(t, 1.0, *p.TopP)
}

func TestDefaultModel(t *testing.T) {
	assert.Equal(t, "model-a", DefaultModel([]string{"model-a", "model-b"}, "fallback"))
	assert.Equal(t, "fallback", DefaultModel(nil, "fallback"))
	assert.Equal(t, "fallback", DefaultModel([]string{}, "fallback"))
}

func TestCleanTitle(t *testing.T) {
	tests := []struct{ in, want string }{
		{in: `"Friendly Greeting"`, want: "Friendly Greeting"},
		{in: "  Trip \"Plans\"  \n", want: "Trip Plans"},
		{in: `""`, want: ""},
		{in: "Already clean", want: "Already clean"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in), tt.in)
	}
}
