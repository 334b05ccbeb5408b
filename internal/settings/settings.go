// Package settings provides typed access to the runtime settings kept in the store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/store"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

const (
	MaxCooldownSeconds    = 3600
	MinChunkLengthSeconds = 1
	MaxChunkLengthSeconds = 30
)

var ErrInvalid = errors.New("invalid setting")

// Settings are the runtime settings editable via the API.
type Settings struct {
	CooldownSeconds    int     `json:"cooldown_seconds"`
	TriggerProbability float64 `json:"trigger_probability"`
	WhisperModel       string  `json:"whisper_model"`
	ChunkLengthSeconds int     `json:"chunk_length_seconds"`
	Language           string  `json:"language"`
	UseStemming        string  `json:"use_stemming"`
}

func Defaults() Settings {
	return Settings{
		CooldownSeconds:    int(trigger.DefaultCooldown / time.Second),
		TriggerProbability: trigger.DefaultProbability,
		WhisperModel:       "base",
		ChunkLengthSeconds: 3,
		Language:           "en",
		UseStemming:        "false",
	}
}

// Map returns the settings as stored key/value pairs.
func (s Settings) Map() map[string]string {
	return map[string]string{
		model.SettingCooldownSeconds:    strconv.Itoa(s.CooldownSeconds),
		model.SettingTriggerProbability: strconv.FormatFloat(s.TriggerProbability, 'f', -1, 64),
		model.SettingWhisperModel:       s.WhisperModel,
		model.SettingChunkLength:        strconv.Itoa(s.ChunkLengthSeconds),
		model.SettingLanguage:           s.Language,
		model.SettingUseStemming:        s.UseStemming,
	}
}

// Cooldown returns the cooldown as duration.
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// Apply configures the trigger engines.
func (s Settings) Apply(engines *trigger.Provider) {
	engines.Configure(s.Cooldown(), s.TriggerProbability)
}

// Load reads the settings from the store.
// Missing or unparseable values fall back to their defaults.
func Load(ctx context.Context, st store.Settings) (Settings, error) {
	values, err := st.AllSettings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("load settings: %w", err)
	}

	s := Defaults()

	for key, value := range values {
		if err := s.set(key, value); err != nil {
			slog.Warn("ignoring invalid stored setting", "key", key, "err", err)
		}
	}

	return s, nil
}

func (s *Settings) set(key, value string) error {
	u, err := ParseUpdate(key, value)
	if err != nil {
		return err
	}

	u.applyTo(s)

	return nil
}

// Update holds the settings to change. Nil fields are left unchanged.
type Update struct {
	CooldownSeconds    *int     `json:"cooldown_seconds,omitempty"`
	TriggerProbability *float64 `json:"trigger_probability,omitempty"`
	WhisperModel       *string  `json:"whisper_model,omitempty"`
	ChunkLengthSeconds *int     `json:"chunk_length_seconds,omitempty"`
	Language           *string  `json:"language,omitempty"`
	UseStemming        *string  `json:"use_stemming,omitempty"`
}

// ParseUpdate creates an update of a single setting from its string representation.
func ParseUpdate(key, value string) (Update, error) {
	var u Update

	switch key {
	case model.SettingCooldownSeconds, model.SettingChunkLength:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return u, fmt.Errorf("%w: %s must be an integer", ErrInvalid, key)
		}

		if key == model.SettingCooldownSeconds {
			u.CooldownSeconds = &n
		} else {
			u.ChunkLengthSeconds = &n
		}
	case model.SettingTriggerProbability:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return u, fmt.Errorf("%w: %s must be a number", ErrInvalid, key)
		}

		u.TriggerProbability = &f
	case model.SettingWhisperModel:
		u.WhisperModel = &value
	case model.SettingLanguage:
		u.Language = &value
	case model.SettingUseStemming:
		u.UseStemming = &value
	default:
		return u, fmt.Errorf("%w: unknown setting %q", ErrInvalid, key)
	}

	return u, u.Validate()
}

// Validate returns an error wrapping ErrInvalid if a value is out of range.
func (u Update) Validate() error {
	if v := u.CooldownSeconds; v != nil && (*v < 0 || *v > MaxCooldownSeconds) {
		return fmt.Errorf("%w: cooldown_seconds must be within 0 and %d", ErrInvalid, MaxCooldownSeconds)
	}

	if v := u.TriggerProbability; v != nil && !(*v >= 0 && *v <= 100) {
		return fmt.Errorf("%w: trigger_probability must be within 0 and 100", ErrInvalid)
	}

	if v := u.ChunkLengthSeconds; v != nil && (*v < MinChunkLengthSeconds || *v > MaxChunkLengthSeconds) {
		return fmt.Errorf("%w: chunk_length_seconds must be within %d and %d", ErrInvalid, MinChunkLengthSeconds, MaxChunkLengthSeconds)
	}

	if v := u.UseStemming; v != nil && *v != "true" && *v != "false" {
		return fmt.Errorf("%w: use_stemming must be \"true\" or \"false\"", ErrInvalid)
	}

	if v := u.Language; v != nil && strings.TrimSpace(*v) == "" {
		return fmt.Errorf("%w: language must not be empty", ErrInvalid)
	}

	if v := u.WhisperModel; v != nil && strings.TrimSpace(*v) == "" {
		return fmt.Errorf("%w: whisper_model must not be empty", ErrInvalid)
	}

	return nil
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u == Update{}
}

// Save validates the update and writes the changed settings into the store.
func (u Update) Save(ctx context.Context, st store.Settings) error {
	if err := u.Validate(); err != nil {
		return err
	}

	var s Settings
	u.applyTo(&s)
	all := s.Map()

	for _, key := range u.keys() {
		if err := st.SetSetting(ctx, key, all[key]); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	return nil
}

func (u Update) keys() []string {
	var keys []string

	if u.CooldownSeconds != nil {
		keys = append(keys, model.SettingCooldownSeconds)
	}
	if u.TriggerProbability != nil {
		keys = append(keys, model.SettingTriggerProbability)
	}
	if u.WhisperModel != nil {
		keys = append(keys, model.SettingWhisperModel)
	}
	if u.ChunkLengthSeconds != nil {
		keys = append(keys, model.SettingChunkLength)
	}
	if u.Language != nil {
		keys = append(keys, model.SettingLanguage)
	}
	if u.UseStemming != nil {
		keys = append(keys, model.SettingUseStemming)
	}

	return keys
}

func (u Update) applyTo(s *Settings) {
	if u.CooldownSeconds != nil {
		s.CooldownSeconds = *u.CooldownSeconds
	}
	if u.TriggerProbability != nil {
		s.TriggerProbability = *u.TriggerProbability
	}
	if u.WhisperModel != nil {
		s.WhisperModel = *u.WhisperModel
	}
	if u.ChunkLengthSeconds != nil {
		s.ChunkLengthSeconds = *u.ChunkLengthSeconds
	}
	if u.Language != nil {
		s.Language = *u.Language
	}
	if u.UseStemming != nil {
		s.UseStemming = *u.UseStemming
	}
}

// Sync periodically applies the stored cooldown and probability to the
// engines so that changes made by other processes take effect.
// It returns when the context is done.
func Sync(ctx context.Context, st store.Settings, engines *trigger.Provider, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Settings

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s, err := Load(ctx, st)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}

				slog.Warn("failed to sync settings", "err", err)
				continue
			}

			if s.CooldownSeconds != last.CooldownSeconds || s.TriggerProbability != last.TriggerProbability {
				slog.Debug(fmt.Sprintf("applying cooldown %ds and probability %.1f%%", s.CooldownSeconds, s.TriggerProbability))
				s.Apply(engines)
				last = s
			}
		}
	}
}
