package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
	"github.com/srgchrksv/docpodcaster/services"
	"github.com/srgchrksv/docpodcaster/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

type fakeGenerator struct {
	res      *models.GenerationResult
	err      error
	progress []services.Progress
	calls    atomic.Int32
}

func (g *fakeGenerator) GenerateWithProgress(ctx context.Context, sourceID, sourceText string, fn services.ProgressFunc) (*models.GenerationResult, error) {
	g.calls.Add(1)
	if fn != nil {
		for _, p := range g.progress {
			fn(p)
		}
	}
	return g.res, g.err
}

var testResult = &models.GenerationResult{
	AudioURL:        "https://cdn.example/podcasts/doc-1.mp3",
	DurationSeconds: 4.5,
	Segments: []models.PodcastSegment{
		{Speaker: "Alex", StartTime: 0, EndTime: 2},
		{Speaker: "Sarah", StartTime: 2, EndTime: 4.5},
	},
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metadata/:documentId", h.GetMetadata)
	r.POST("/generate/:documentId", h.Generate)
	r.GET("/stream/:documentId", h.Stream)
	r.GET("/audio/*key", h.Audio)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestGetMetadata(t *testing.T) {
	cache := storage.NewStorage("")
	r := newTestRouter(NewHandler(&fakeGenerator{}, cache, nil, nil))

	w := serve(r, http.MethodGet, "/metadata/doc-1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, cache.Put(context.Background(), models.NewPodcastMetadata("doc-1", testResult)))

	w = serve(r, http.MethodGet, "/metadata/doc-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "doc-1", body["documentId"])
	assert.Equal(t, testResult.AudioURL, body["audioUrl"])
}

func TestGenerateCacheMiss(t *testing.T) {
	cache := storage.NewStorage("")
	gen := &fakeGenerator{res: testResult}
	r := newTestRouter(NewHandler(gen, cache, nil, nil))

	w := serve(r, http.MethodPost, "/generate/doc-1", `{"text":"The quarterly report."}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, false, body["isCached"])
	assert.Equal(t, testResult.AudioURL, body["audioUrl"])
	assert.Equal(t, 4.5, body["durationSeconds"])
	assert.Len(t, body["segments"], 2)

	meta, err := cache.Get(context.Background(), "doc-1")
	require.NoError(t, err, "result should be cached")
	assert.Equal(t, testResult.AudioURL, meta.AudioURL)
}

func TestGenerateCacheHit(t *testing.T) {
	cache := storage.NewStorage("")
	require.NoError(t, cache.Put(context.Background(), models.NewPodcastMetadata("doc-1", testResult)))
	gen := &fakeGenerator{err: errors.New("must not be called")}
	r := newTestRouter(NewHandler(gen, cache, nil, nil))

	w := serve(r, http.MethodPost, "/generate/doc-1", `{"text":"anything"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["isCached"])
	assert.Zero(t, gen.calls.Load(), "generator should not run on a cache hit")
}

func TestGenerateBadRequest(t *testing.T) {
	gen := &fakeGenerator{res: testResult}
	r := newTestRouter(NewHandler(gen, storage.NewStorage(""), nil, nil))

	for _, body := range []string{"", "not json", `{}`, `{"text":"   "}`} {
		w := serve(r, http.MethodPost, "/generate/doc-1", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
	assert.Zero(t, gen.calls.Load())
}

func TestGenerateErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"argument", apperrors.Argument("source id is required"), http.StatusBadRequest},
		{"upstream", apperrors.Upstream(&googleapi.Error{Code: 500, Message: "secret detail"}, "status 500"), http.StatusBadGateway},
		{"script parse", apperrors.ScriptParse(errors.New("secret detail"), "decode script"), http.StatusUnprocessableEntity},
		{"empty script", apperrors.EmptyScript(), http.StatusUnprocessableEntity},
		{"synthesis", apperrors.Synthesis(errors.New("secret detail"), true).AtLine(3), http.StatusBadGateway},
		{"upload", apperrors.Upload(errors.New("secret detail"), "upload podcasts/doc-1.mp3"), http.StatusBadGateway},
		{"configuration", apperrors.Configuration("no speech client"), http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"unknown", errors.New("secret detail"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := storage.NewStorage("")
			r := newTestRouter(NewHandler(&fakeGenerator{err: tt.err}, cache, nil, nil))

			w := serve(r, http.MethodPost, "/generate/doc-1", `{"text":"source"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.NotContains(t, w.Body.String(), "secret detail")

			_, err := cache.Get(context.Background(), "doc-1")
			assert.ErrorIs(t, err, storage.ErrNotFound, "failed generation should not be cached")
		})
	}
}

func TestAudio(t *testing.T) {
	objects := storage.NewStorage("")
	_, err := objects.Upload(context.Background(), "podcasts/doc-1.mp3", []byte{0xFF, 0xFB})
	require.NoError(t, err)
	h := NewHandler(&fakeGenerator{}, objects, nil, nil)
	r := newTestRouter(h)

	w := serve(r, http.MethodGet, "/audio/podcasts/doc-1.mp3", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "no object reader configured")

	h.ServeObjects(objects)
	w = serve(r, http.MethodGet, "/audio/podcasts/doc-1.mp3", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/mpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xFB}, w.Body.Bytes())

	w = serve(r, http.MethodGet, "/audio/podcasts/other.mp3", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
