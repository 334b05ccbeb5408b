package model

import "time"

// Clip is a short audio file that can be played when one of its tags is spoken.
type Clip struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	PlayCount int64     `json:"play_count"`
}

type NotificationType string

const (
	NotificationTranscription NotificationType = "transcription"
	NotificationMatch         NotificationType = "match"
	NotificationTrigger       NotificationType = "trigger"
	NotificationDebug         NotificationType = "debug"
	NotificationPong          NotificationType = "pong"
	NotificationStatus        NotificationType = "status"
)

type DebugLevel string

const (
	DebugWarning     DebugLevel = "warning"
	DebugInfo        DebugLevel = "info"
	DebugCooldown    DebugLevel = "cooldown"
	DebugProbability DebugLevel = "probability"
	DebugError       DebugLevel = "error"
)

// Notification is a message sent to a connected client.
type Notification struct {
	Type          NotificationType `json:"type"`
	Text          string           `json:"text,omitempty"`
	MatchedTags   []string         `json:"matched_tags,omitempty"`
	Transcription string           `json:"transcription,omitempty"`
	MemeID        int64            `json:"meme_id,omitempty"`
	Filename      string           `json:"filename,omitempty"`
	Level         DebugLevel       `json:"level,omitempty"`
	Message       string           `json:"message,omitempty"`
	Data          any              `json:"data,omitempty"`
}

type ControlType string

const (
	ControlPing       ControlType = "ping"
	ControlGetStatus  ControlType = "get_status"
	ControlAudioEnded ControlType = "audio_ended"
)

// ControlMessage is a JSON message sent by a client.
type ControlMessage struct {
	Type ControlType `json:"type"`
}

// Setting keys stored within the settings table.
const (
	SettingCooldownSeconds    = "cooldown_seconds"
	SettingTriggerProbability = "trigger_probability"
	SettingWhisperModel       = "whisper_model"
	SettingChunkLength        = "chunk_length_seconds"
	SettingLanguage           = "language"
	SettingUseStemming        = "use_stemming"
)
