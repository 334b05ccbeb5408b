package pipeline

import (
	"fmt"

	"github.com/mgoltzsche/sobub/internal/model"
	"github.com/mgoltzsche/sobub/internal/trigger"
)

// BuildMessages projects a result onto the ordered notifications sent to the client.
// Silence yields no notification at all.
func BuildMessages(r Result) []model.Notification {
	switch r.Kind {
	case KindNoTranscription:
		return []model.Notification{}
	case KindNoClips:
		return []model.Notification{debugMessage(model.DebugWarning, "No memes in database")}
	case KindNoMatch:
		return []model.Notification{
			transcriptionMessage(r.Transcription),
			debugMessage(model.DebugInfo, "No matching tags found"),
		}
	case KindError:
		return []model.Notification{debugMessage(model.DebugError, "Error: "+r.Err)}
	case KindComplete:
		return completeMessages(r)
	default:
		return []model.Notification{debugMessage(model.DebugError, fmt.Sprintf("Error: unexpected pipeline result %q", r.Kind))}
	}
}

func completeMessages(r Result) []model.Notification {
	msgs := []model.Notification{transcriptionMessage(r.Transcription)}

	if r.Match.Matched() {
		msgs = append(msgs, model.Notification{
			Type:          model.NotificationMatch,
			MatchedTags:   r.Match.Tags,
			Transcription: r.Transcription,
		})
	}

	switch r.Decision.Outcome {
	case trigger.Triggered:
		msgs = append(msgs, model.Notification{
			Type:        model.NotificationTrigger,
			MemeID:      r.Decision.Clip.ID,
			Filename:    r.Decision.Clip.Filename,
			MatchedTags: r.Match.Tags,
		})
	case trigger.BlockedByCooldown:
		msgs = append(msgs, debugMessage(model.DebugCooldown, fmt.Sprintf("Cooldown active: %ds remaining", r.Decision.CooldownRemaining)))
	case trigger.BlockedByProbability:
		msgs = append(msgs, debugMessage(model.DebugProbability, "Probability check failed (unlucky roll)"))
	case trigger.NoCandidates:
	}

	return msgs
}

func transcriptionMessage(text string) model.Notification {
	return model.Notification{Type: model.NotificationTranscription, Text: text}
}

func debugMessage(level model.DebugLevel, msg string) model.Notification {
	return model.Notification{Type: model.NotificationDebug, Level: level, Message: msg}
}
