package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Speaker is one of the two podcast roles.
type Speaker string

const (
	Host  Speaker = "Host"
	Guest Speaker = "Guest"
)

// ParseSpeaker maps a model-produced label onto a Speaker. Anything that is not
// "guest" (case-insensitive) is treated as the host.
func ParseSpeaker(label string) Speaker {
	if strings.EqualFold(strings.TrimSpace(label), string(Guest)) {
		return Guest
	}
	return Host
}

// ScriptLine is one turn of dialogue.
type ScriptLine struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Voice is the synthesis voice and the name shown to listeners.
type Voice struct {
	ID          string
	DisplayName string
}

type Voices map[Speaker]Voice

// DefaultVoices returns the Alex (host) / Sarah (guest) pairing.
func DefaultVoices() Voices {
	return Voices{
		Host:  {ID: "en-US-Journey-D", DisplayName: "Alex"},
		Guest: {ID: "en-US-Journey-F", DisplayName: "Sarah"},
	}
}

// For resolves the voice of a speaker, falling back to the host voice.
func (v Voices) For(s Speaker) Voice {
	if voice, ok := v[s]; ok {
		return voice
	}
	return v[Host]
}

// PodcastSegment is the playback window of one script line.
type PodcastSegment struct {
	Speaker   string  `json:"speaker" bson:"speaker"`
	StartTime float64 `json:"startTime" bson:"startTime"`
	EndTime   float64 `json:"endTime" bson:"endTime"`
}

// GenerationResult is what a finished, uploaded podcast looks like to callers.
type GenerationResult struct {
	AudioURL        string           `json:"audioUrl"`
	DurationSeconds float64          `json:"durationSeconds"`
	Segments        []PodcastSegment `json:"segments"`
}

// PodcastMetadata is the cached record for a generated podcast, keyed by document id.
type PodcastMetadata struct {
	ID              primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	DocumentID      string             `json:"documentId" bson:"documentId"`
	AudioURL        string             `json:"audioUrl" bson:"audioUrl"`
	DurationSeconds float64            `json:"durationSeconds" bson:"durationSeconds"`
	Segments        []PodcastSegment   `json:"segments" bson:"segments"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
}

// NewPodcastMetadata builds a cache record from a generation result.
func NewPodcastMetadata(documentID string, res *GenerationResult) PodcastMetadata {
	return PodcastMetadata{
		DocumentID:      documentID,
		AudioURL:        res.AudioURL,
		DurationSeconds: res.DurationSeconds,
		Segments:        res.Segments,
		CreatedAt:       time.Now().UTC(),
	}
}
