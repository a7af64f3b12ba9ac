package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/audio"
	"github.com/srgchrksv/docpodcaster/models"
)

// ObjectStore keeps finished audio. Uploading to an existing key replaces the object.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte) (url string, err error)
}

// Podcast is a rendered podcast that has not been uploaded.
type Podcast struct {
	Audio           []byte
	DurationSeconds float64
	Segments        []models.PodcastSegment
}

// Progress is reported once per finished script line.
type Progress struct {
	Line    int // 1-based
	Lines   int
	Segment models.PodcastSegment
}

// ProgressFunc receives progress on the generating goroutine.
type ProgressFunc func(Progress)

// ObjectKey is where the audio of a source is stored.
func ObjectKey(sourceID string) string {
	return "podcasts/" + sourceID + ".mp3"
}

// Podcaster runs the whole pipeline: script, speech, stitching and upload.
// One request is processed strictly in order since every segment's start time
// depends on the measured length of the audio before it. A Podcaster may serve
// concurrent requests.
type Podcaster struct {
	script *ScriptGenerator
	speech *Synthesizer
	store  ObjectStore
	log    *slog.Logger

	Voices        models.Voices
	MaxInputChars int
}

func NewPodcaster(script *ScriptGenerator, speech *Synthesizer, store ObjectStore, log *slog.Logger) *Podcaster {
	if log == nil {
		log = slog.Default()
	}
	return &Podcaster{
		script:        script,
		speech:        speech,
		store:         store,
		log:           log,
		Voices:        models.DefaultVoices(),
		MaxInputChars: 25000,
	}
}

// Generate renders a podcast for sourceText and uploads it under sourceID.
func (p *Podcaster) Generate(ctx context.Context, sourceID, sourceText string) (*models.GenerationResult, error) {
	return p.GenerateWithProgress(ctx, sourceID, sourceText, nil)
}

// GenerateWithProgress is Generate with a callback after each script line.
func (p *Podcaster) GenerateWithProgress(ctx context.Context, sourceID, sourceText string, fn ProgressFunc) (*models.GenerationResult, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, apperrors.Argument("sourceId is required")
	}
	if strings.TrimSpace(sourceText) == "" {
		return nil, apperrors.Argument("source text is required")
	}
	if p.store == nil {
		return nil, apperrors.Configuration("object store is not configured")
	}

	log := p.log.With("source_id", sourceID)
	start := time.Now()

	pod, err := p.render(ctx, log, sourceText, fn)
	if err != nil {
		log.Error("podcast generation failed", "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := ObjectKey(sourceID)
	url, err := p.store.Upload(ctx, key, pod.Audio)
	if err != nil {
		log.Error("podcast upload failed", "key", key, "error", err)
		return nil, apperrors.Upload(err, "upload %s", key)
	}

	log.Info("podcast generated",
		"segments", len(pod.Segments),
		"duration_seconds", pod.DurationSeconds,
		"bytes", len(pod.Audio),
		"elapsed", time.Since(start))

	return &models.GenerationResult{
		AudioURL:        url,
		DurationSeconds: pod.DurationSeconds,
		Segments:        pod.Segments,
	}, nil
}

// Render produces the stitched MP3 and its timing index without uploading.
func (p *Podcaster) Render(ctx context.Context, sourceText string) (*Podcast, error) {
	return p.render(ctx, p.log, sourceText, nil)
}

func (p *Podcaster) render(ctx context.Context, log *slog.Logger, sourceText string, fn ProgressFunc) (*Podcast, error) {
	text := truncateRunes(strings.TrimSpace(sourceText), p.MaxInputChars)
	if text == "" {
		return nil, apperrors.Argument("source text is required")
	}
	if p.script == nil || p.speech == nil {
		return nil, apperrors.Configuration("script generator and synthesizer are required")
	}

	lines, err := p.script.Generate(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperrors.EmptyScript()
	}
	log.Debug("script generated", "lines", len(lines))

	var (
		out      bytes.Buffer
		total    float64
		segments = make([]models.PodcastSegment, 0, len(lines))
	)
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		voice := p.Voices.For(line.Speaker)
		var lineSeconds float64
		for chunk := range p.speech.Chunks(line.Text) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			mp3, err := p.speech.Synthesize(ctx, chunk, voice)
			if err != nil {
				var appErr *apperrors.Error
				if errors.As(err, &appErr) {
					return nil, appErr.AtLine(i + 1)
				}
				return nil, err
			}

			secs, err := audio.AppendAndMeasure(&out, mp3)
			switch {
			case errors.Is(err, audio.ErrMalformedFrame):
				log.Warn("synthesized audio truncated", "line", i+1, "error", err)
			case err != nil:
				return nil, fmt.Errorf("buffer audio for line %d: %w", i+1, err)
			}
			lineSeconds += secs
		}

		seg := models.PodcastSegment{
			Speaker:   voice.DisplayName,
			StartTime: total,
			EndTime:   total + lineSeconds,
		}
		total = seg.EndTime
		segments = append(segments, seg)

		if fn != nil {
			fn(Progress{Line: i + 1, Lines: len(lines), Segment: seg})
		}
	}

	return &Podcast{
		Audio:           out.Bytes(),
		DurationSeconds: total,
		Segments:        segments,
	}, nil
}
