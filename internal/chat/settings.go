package chat

import (
	"strings"

	"groqchat/internal/models"
)

const (
	maxTemperature = 2.0
	maxTopP        = 1.0
)

// Settings are the generation parameters applied to the next submission.
type Settings struct {
	Model       string
	Temperature float64
	TopP        float64
}

// WithTemperature returns a copy with the temperature clamped to [0, 2].
func (s Settings) WithTemperature(v float64) Settings {
	s.Temperature = clamp(v, 0, maxTemperature)
	return s
}

// WithTopP returns a copy with top-p clamped to [0, 1].
func (s Settings) WithTopP(v float64) Settings {
	s.TopP = clamp(v, 0, maxTopP)
	return s
}

// WithModel returns a copy using the given model id.
func (s Settings) WithModel(model string) Settings {
	s.Model = strings.TrimSpace(model)
	return s
}

// Params converts the settings into request overrides.
func (s Settings) Params() models.GenerationParams {
	temperature, topP := s.Temperature, s.TopP
	return models.GenerationParams{
		Model:       s.Model,
		Temperature: &temperature,
		TopP:        &topP,
	}
}

// DefaultModel picks the first listed model, or fallback when none are listed.
func DefaultModel(ids []string, fallback string) string {
	if len(ids) == 0 {
		return fallback
	}
	return ids[0]
}

// CleanTitle strips double quotes and surrounding whitespace from a generated title.
func CleanTitle(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, `"`, ""))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
