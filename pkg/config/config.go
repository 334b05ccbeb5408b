package config

import (
	"fmt"

	"github.com/mgoltzsche/sobub/internal/settings"
)

const (
	STTProviderHTTP   = "http"
	STTProviderOpenAI = "openai"
)

type Configuration struct {
	ServerURL          string   `json:"serverURL"`
	APIKey             string   `json:"apiKey,omitempty"`
	STTProvider        string   `json:"sttProvider,omitempty"`
	STTModel           string   `json:"sttModel,omitempty"`
	DatabaseURL        string   `json:"databaseURL,omitempty"`
	AudioDir           string   `json:"audioDir,omitempty"`
	WebDir             string   `json:"webDir,omitempty"`
	MinChunkBytes      int      `json:"minChunkBytes,omitempty"`
	VADEnabled         bool     `json:"vadEnabled,omitempty"`
	VADModelPath       string   `json:"vadModelPath,omitempty"`
	TriggerScope       string   `json:"triggerScope,omitempty"`
	PhoneticCorrection bool     `json:"phoneticCorrection,omitempty"`
	AllowedOrigins     []string `json:"allowedOrigins,omitempty"`
	Defaults           Defaults `json:"defaults,omitempty"`
}

// Defaults seed the runtime settings that are not stored yet.
// Zero values keep the built-in defaults.
type Defaults struct {
	CooldownSeconds    *int     `json:"cooldownSeconds,omitempty"`
	TriggerProbability *float64 `json:"triggerProbability,omitempty"`
	WhisperModel       string   `json:"whisperModel,omitempty"`
	ChunkLengthSeconds int      `json:"chunkLengthSeconds,omitempty"`
	Language           string   `json:"language,omitempty"`
	UseStemming        bool     `json:"useStemming,omitempty"`
}

// Settings merges the configured defaults into the built-in ones.
func (d Defaults) Settings() (settings.Settings, error) {
	s := settings.Defaults()

	if d.CooldownSeconds != nil {
		s.CooldownSeconds = *d.CooldownSeconds
	}
	if d.TriggerProbability != nil {
		s.TriggerProbability = *d.TriggerProbability
	}
	if d.WhisperModel != "" {
		s.WhisperModel = d.WhisperModel
	}
	if d.ChunkLengthSeconds != 0 {
		s.ChunkLengthSeconds = d.ChunkLengthSeconds
	}
	if d.Language != "" {
		s.Language = d.Language
	}
	if d.UseStemming {
		s.UseStemming = "true"
	}

	u := settings.Update{
		CooldownSeconds:    &s.CooldownSeconds,
		TriggerProbability: &s.TriggerProbability,
		ChunkLengthSeconds: &s.ChunkLengthSeconds,
	}

	if err := u.Validate(); err != nil {
		return s, fmt.Errorf("config defaults: %w", err)
	}

	return s, nil
}
