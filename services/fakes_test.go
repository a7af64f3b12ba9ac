package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2"
)

const (
	frameSize    = 417 // MPEG-1 Layer III, 128 kbps, 44.1 kHz
	frameSeconds = 1152.0 / 44100.0
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mp3Frames returns n back-to-back MPEG-1 Layer III frames.
func mp3Frames(n int) []byte {
	frame := make([]byte, frameSize)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x64})
	return bytes.Repeat(frame, n)
}

// fakeModel answers every call with text, or fails with err.
type fakeModel struct {
	text  string
	parts []string
	err   error
	block bool

	calls  int
	prompt string
}

func (m *fakeModel) GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m.calls++
	if len(parts) > 0 {
		if t, ok := parts[0].(genai.Text); ok {
			m.prompt = string(t)
		}
	}
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}

	content := &genai.Content{Role: "model"}
	if m.parts != nil {
		for _, p := range m.parts {
			content.Parts = append(content.Parts, genai.Text(p))
		}
	} else {
		content.Parts = []genai.Part{genai.Text(m.text)}
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}, nil
}

// fakeSpeech fails with the queued errors first (or always with alwaysErr) and
// then returns frames MP3 frames per call.
type fakeSpeech struct {
	mu        sync.Mutex
	errs      []error
	alwaysErr error
	failOn    func(text string) error
	audio     func(text string) []byte

	calls int
	reqs  []*texttospeechpb.SynthesizeSpeechRequest
}

func (f *fakeSpeech) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.reqs = append(f.reqs, req)
	if f.alwaysErr != nil {
		return nil, f.alwaysErr
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	text := req.GetInput().GetText()
	if f.failOn != nil {
		if err := f.failOn(text); err != nil {
			return nil, err
		}
	}
	if f.audio != nil {
		return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: f.audio(text)}, nil
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: mp3Frames(2)}, nil
}

// fakeStore records uploads.
type fakeStore struct {
	err     error
	uploads map[string][]byte
}

func (s *fakeStore) Upload(_ context.Context, key string, data []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.uploads == nil {
		s.uploads = make(map[string][]byte)
	}
	s.uploads[key] = bytes.Clone(data)
	return "https://cdn.example/" + key, nil
}

// noSleep makes retries immediate and records the requested delays.
func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}
