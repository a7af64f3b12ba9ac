package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const twoLineScript = `[{"speaker":"Host","text":"Let's discuss the quarterly report."},{"speaker":"Guest","text":"The 12% growth is driven by new customers."}]`

type podcasterFixture struct {
	model  *fakeModel
	speech *fakeSpeech
	store  *fakeStore
	p      *Podcaster
}

func newPodcasterFixture(script string) *podcasterFixture {
	f := &podcasterFixture{
		model:  &fakeModel{text: script},
		speech: &fakeSpeech{},
		store:  &fakeStore{},
	}
	var delays []time.Duration
	synth := newTestSynthesizer(f.speech, &delays)
	gen := NewScriptGenerator(f.model, 25000, time.Second, testLogger())
	f.p = NewPodcaster(gen, synth, f.store, testLogger())
	return f
}

func assertContiguous(t *testing.T, segs []models.PodcastSegment, total float64) {
	t.Helper()
	if len(segs) == 0 {
		t.Fatal("no segments")
	}
	if segs[0].StartTime != 0 {
		t.Errorf("first segment starts at %v", segs[0].StartTime)
	}
	for i := 0; i+1 < len(segs); i++ {
		if segs[i].EndTime != segs[i+1].StartTime {
			t.Errorf("gap between segment %d (%v) and %d (%v)", i, segs[i].EndTime, i+1, segs[i+1].StartTime)
		}
	}
	if last := segs[len(segs)-1].EndTime; math.Abs(last-total) > 1e-9 {
		t.Errorf("last segment ends at %v, total is %v", last, total)
	}
}

func TestGenerateEndToEnd(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)

	res, err := f.p.Generate(context.Background(), "doc-1", "The quarterly report shows revenue growth of 12%.")
	if err != nil {
		t.Fatalf("Generate error = %v", err)
	}

	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].Speaker != "Alex" || res.Segments[1].Speaker != "Sarah" {
		t.Errorf("speakers = %q, %q", res.Segments[0].Speaker, res.Segments[1].Speaker)
	}
	for i, s := range res.Segments {
		if s.EndTime-s.StartTime <= 0 {
			t.Errorf("segment %d has no duration", i)
		}
	}
	assertContiguous(t, res.Segments, res.DurationSeconds)
	if math.Abs(res.DurationSeconds-4*frameSeconds) > 1e-9 {
		t.Errorf("duration = %v, want %v", res.DurationSeconds, 4*frameSeconds)
	}

	audio, ok := f.store.uploads["podcasts/doc-1.mp3"]
	if !ok {
		t.Fatalf("nothing uploaded under podcasts/doc-1.mp3: %v", f.store.uploads)
	}
	if len(audio) != 4*frameSize {
		t.Errorf("uploaded %d bytes, want %d", len(audio), 4*frameSize)
	}
	if res.AudioURL != "https://cdn.example/podcasts/doc-1.mp3" {
		t.Errorf("AudioURL = %q", res.AudioURL)
	}

	if got := f.speech.reqs[0].GetVoice().GetName(); got != "en-US-Journey-D" {
		t.Errorf("host voice = %q", got)
	}
	if got := f.speech.reqs[1].GetVoice().GetName(); got != "en-US-Journey-F" {
		t.Errorf("guest voice = %q", got)
	}
}

func TestGenerateSegmentsContiguousWithUnevenAudio(t *testing.T) {
	script := `[` +
		`{"speaker":"Host","text":"One."},{"speaker":"Guest","text":"Two two."},` +
		`{"speaker":"Host","text":"Three three three."},{"speaker":"Guest","text":"Four."},` +
		`{"speaker":"Host","text":"Five five."}]`
	f := newPodcasterFixture(script)
	f.speech.audio = func(text string) []byte { return mp3Frames(len(text) % 7) }

	res, err := f.p.Generate(context.Background(), "doc-2", "source")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Segments) != 5 {
		t.Fatalf("segments = %d, want 5", len(res.Segments))
	}
	assertContiguous(t, res.Segments, res.DurationSeconds)
}

func TestGenerateLongLineIsChunked(t *testing.T) {
	long := strings.Repeat("This sentence is part of a very long answer. ", 150) // ~6.7 KB
	f := newPodcasterFixture(`[{"speaker":"Guest","text":"` + long + `"},{"speaker":"Host","text":"Short."}]`)

	res, err := f.p.Generate(context.Background(), "doc-3", "source")
	if err != nil {
		t.Fatal(err)
	}
	if f.speech.calls != 3 {
		t.Errorf("synthesis calls = %d, want 2 for the long line and 1 for the short one", f.speech.calls)
	}
	for _, req := range f.speech.reqs {
		if n := len(req.GetInput().GetText()); n > ChunkBytes {
			t.Errorf("request text is %d bytes", n)
		}
	}
	first := res.Segments[0]
	if math.Abs((first.EndTime-first.StartTime)-4*frameSeconds) > 1e-9 {
		t.Errorf("long line should span both chunks, got %v", first.EndTime-first.StartTime)
	}
}

func TestGenerateUpstreamFailure(t *testing.T) {
	f := newPodcasterFixture("")
	f.model.err = &googleapi.Error{Code: 500, Message: "internal"}

	res, err := f.p.Generate(context.Background(), "doc-1", "text")
	if !errors.Is(err, apperrors.ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if res != nil {
		t.Error("no result expected on failure")
	}
	if len(f.store.uploads) != 0 || f.speech.calls != 0 {
		t.Errorf("uploads = %d speech calls = %d, want none", len(f.store.uploads), f.speech.calls)
	}
}

func TestGenerateEmptyScript(t *testing.T) {
	f := newPodcasterFixture(`[{"speaker":"Host","text":"   "}]`)

	_, err := f.p.Generate(context.Background(), "doc-1", "text")
	if !errors.Is(err, apperrors.ErrEmptyScript) {
		t.Fatalf("err = %v, want ErrEmptyScript", err)
	}
	if len(f.store.uploads) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestGenerateArgumentErrors(t *testing.T) {
	tests := []struct {
		name, id, text string
	}{
		{"missing id", "", "text"},
		{"blank id", "  ", "text"},
		{"missing text", "doc-1", ""},
		{"blank text", "doc-1", " \n\t "},
	}
	for _, tt := range tests {
		f := newPodcasterFixture(twoLineScript)
		_, err := f.p.Generate(context.Background(), tt.id, tt.text)
		if !errors.Is(err, apperrors.ErrArgument) {
			t.Errorf("%s: err = %v, want ErrArgument", tt.name, err)
		}
		if f.model.calls != 0 {
			t.Errorf("%s: model was called", tt.name)
		}
	}
}

func TestGenerateSynthesisFailureCarriesLine(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	f.speech.failOn = func(text string) error {
		if strings.HasPrefix(text, "The 12%") {
			return status.Error(codes.PermissionDenied, "voice not allowed")
		}
		return nil
	}

	_, err := f.p.Generate(context.Background(), "doc-1", "text")
	if !errors.Is(err, apperrors.ErrSynthesis) {
		t.Fatalf("err = %v, want ErrSynthesis", err)
	}
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Line != 2 || appErr.Stage != "synthesis" {
		t.Errorf("error context = %+v, want line 2 in synthesis", appErr)
	}
	if len(f.store.uploads) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestGenerateUploadFailure(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	f.store.err = errors.New("bucket not found")

	_, err := f.p.Generate(context.Background(), "doc-1", "text")
	if !errors.Is(err, apperrors.ErrUpload) {
		t.Fatalf("err = %v, want ErrUpload", err)
	}
	if !strings.Contains(err.Error(), "podcasts/doc-1.mp3") {
		t.Errorf("error should name the key: %v", err)
	}
}

func TestGenerateRequiresStore(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	f.p.store = nil

	if _, err := f.p.Generate(context.Background(), "doc-1", "text"); !errors.Is(err, apperrors.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestGenerateAbsorbsMalformedAudio(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	f.speech.audio = func(string) []byte {
		return append(mp3Frames(1), []byte("garbage after the first frame")...)
	}

	res, err := f.p.Generate(context.Background(), "doc-1", "text")
	if err != nil {
		t.Fatalf("malformed frames should not fail the request: %v", err)
	}
	if math.Abs(res.DurationSeconds-2*frameSeconds) > 1e-9 {
		t.Errorf("duration = %v, want only the parsed frames", res.DurationSeconds)
	}
	if got := len(f.store.uploads["podcasts/doc-1.mp3"]); got != 2*frameSize {
		t.Errorf("uploaded %d bytes, want %d", got, 2*frameSize)
	}
}

func TestGenerateWithProgress(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)

	var got []Progress
	res, err := f.p.GenerateWithProgress(context.Background(), "doc-1", "text", func(p Progress) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("progress events = %d, want 2", len(got))
	}
	for i, p := range got {
		if p.Line != i+1 || p.Lines != 2 || p.Segment != res.Segments[i] {
			t.Errorf("event %d = %+v", i, p)
		}
	}
}

func TestGenerateCanceledBetweenLines(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.p.GenerateWithProgress(ctx, "doc-1", "text", func(Progress) { cancel() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if f.speech.calls != 1 {
		t.Errorf("speech calls = %d, want to stop after the first line", f.speech.calls)
	}
	if len(f.store.uploads) != 0 {
		t.Error("nothing should be uploaded")
	}
}

func TestRenderDoesNotUpload(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)

	pod, err := f.p.Render(context.Background(), "The quarterly report shows revenue growth of 12%.")
	if err != nil {
		t.Fatal(err)
	}
	if len(pod.Audio) != 4*frameSize {
		t.Errorf("audio = %d bytes", len(pod.Audio))
	}
	assertContiguous(t, pod.Segments, pod.DurationSeconds)
	if len(f.store.uploads) != 0 {
		t.Error("Render must not upload")
	}
}

func TestGenerateTruncatesSource(t *testing.T) {
	f := newPodcasterFixture(twoLineScript)
	f.p.MaxInputChars = 5

	if _, err := f.p.Generate(context.Background(), "doc-1", "abcdefghij"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(f.model.prompt, "\nabcde") {
		t.Errorf("prompt should end with the truncated source, got %q", f.model.prompt[len(f.model.prompt)-20:])
	}
}
