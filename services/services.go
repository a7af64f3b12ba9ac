// Package services implements the podcast pipeline: script generation with Gemini,
// speech synthesis with Google Cloud Text-to-Speech, and frame-accurate MP3 stitching.
package services

import (
	"log/slog"

	"github.com/srgchrksv/docpodcaster/config"
)

// Services bundles the pipeline stages built from one configuration.
type Services struct {
	Script    *ScriptGenerator
	Speech    *Synthesizer
	Podcaster *Podcaster
}

// NewServices wires the pipeline around already constructed clients. The clients
// are shared by every request and are not closed here.
func NewServices(cfg *config.Config, model ContentGenerator, speech SpeechClient, store ObjectStore, log *slog.Logger) *Services {
	if log == nil {
		log = slog.Default()
	}
	script := NewScriptGenerator(model, cfg.MaxInputChars, cfg.ScriptTimeout, log.With("stage", "script"))
	synth := NewSynthesizer(speech, cfg.TTSLanguage, cfg.TTSTimeout, log.With("stage", "synthesis"))

	podcaster := NewPodcaster(script, synth, store, log)
	podcaster.Voices = cfg.Voices()
	if cfg.MaxInputChars > 0 {
		podcaster.MaxInputChars = cfg.MaxInputChars
	}

	return &Services{
		Script:    script,
		Speech:    synth,
		Podcaster: podcaster,
	}
}
