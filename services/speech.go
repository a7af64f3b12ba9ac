package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// ChunkBytes is the text budget per synthesis request.
	ChunkBytes = 4800
	// MaxRequestBytes is the service's hard limit on input text.
	MaxRequestBytes = 5000
)

// SpeechClient is the part of *texttospeech.Client the synthesizer uses.
type SpeechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
}

// NewSpeechClient builds a Text-to-Speech client from inline service account JSON,
// falling back to a credentials file. The client is safe for concurrent use and
// should be created once per process.
func NewSpeechClient(ctx context.Context, credentialsJSON, credentialsFile string) (*texttospeech.Client, error) {
	var opt option.ClientOption
	switch {
	case credentialsJSON != "":
		opt = option.WithCredentialsJSON([]byte(credentialsJSON))
	case credentialsFile != "":
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, apperrors.Configuration("google credentials not found in GOOGLE_CREDENTIALS_JSON or %s", credentialsFile)
		}
		opt = option.WithCredentialsFile(credentialsFile)
	default:
		return nil, apperrors.Configuration("google credentials not configured")
	}

	client, err := texttospeech.NewClient(ctx, opt)
	if err != nil {
		return nil, &apperrors.Error{Kind: apperrors.KindConfiguration, Message: "create text-to-speech client", Err: err}
	}
	return client, nil
}

// Synthesizer converts text to MP3 audio, retrying transient failures.
type Synthesizer struct {
	client   SpeechClient
	language string
	timeout  time.Duration
	log      *slog.Logger

	Retry RetryPolicy
}

func NewSynthesizer(client SpeechClient, language string, timeout time.Duration, log *slog.Logger) *Synthesizer {
	if log == nil {
		log = slog.Default()
	}
	if language == "" {
		language = "en-US"
	}
	return &Synthesizer{
		client:   client,
		language: language,
		timeout:  timeout,
		log:      log,
		Retry:    DefaultRetryPolicy(),
	}
}

// Chunks splits a script line into pieces that fit a single request.
func (s *Synthesizer) Chunks(text string) iter.Seq[string] {
	return SplitUTF8(text, ChunkBytes)
}

// Synthesize returns MP3 audio for text, which must fit in one request.
// Failures come back as synthesis errors once the retry budget is spent.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, voice models.Voice) ([]byte, error) {
	if s.client == nil {
		return nil, apperrors.Configuration("speech client is not configured")
	}
	if len(text) > MaxRequestBytes {
		return nil, apperrors.Synthesis(fmt.Errorf("text is %d bytes, limit is %d", len(text), MaxRequestBytes), false)
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: s.language,
			Name:         voice.ID,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}

	return retry(ctx, s.Retry, s.log.With("voice", voice.ID, "bytes", len(text)), func(ctx context.Context) ([]byte, error) {
		callCtx := ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		resp, err := s.client.SynthesizeSpeech(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, apperrors.Synthesis(err, IsTransient(err))
		}
		return resp.GetAudioContent(), nil
	})
}

// IsTransient reports whether a Text-to-Speech failure is likely to succeed on retry:
// resource exhaustion, unavailability, an internal server fault or a deadline.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
