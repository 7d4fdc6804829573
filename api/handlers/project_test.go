package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyloom/storyloom/config"
	"github.com/storyloom/storyloom/internal/models"
	"github.com/storyloom/storyloom/internal/pipeline"
	"github.com/storyloom/storyloom/internal/progress"
	"github.com/storyloom/storyloom/internal/store"
	"github.com/storyloom/storyloom/pkg/logger"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []pipeline.Message
}

func (q *fakeQueue) Enqueue(ctx context.Context, msg pipeline.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *fakeQueue) kinds() []pipeline.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var kinds []pipeline.Kind
	for _, m := range q.msgs {
		kinds = append(kinds, m.Body.Kind())
	}
	return kinds
}

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Store(ctx context.Context, reader io.Reader, key string, size int64, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return key, nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

type apiFixture struct {
	store    *store.Store
	queue    *fakeQueue
	registry *progress.Registry
	objects  *fakeObjects
	router   *gin.Engine
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logger.NewTestLogger()
	queue := &fakeQueue{}
	objects := newFakeObjects()
	registry := progress.NewRegistry(8, 8, nil, log)
	launcher := pipeline.NewLauncher(st, queue, log)
	dispatcher := pipeline.NewDispatcher(st, launcher, registry, log)

	cfg := &config.PipelineConfig{
		DiscoveryBufferSize:  8,
		SubscriberBufferSize: 8,
		HeartbeatSecs:        1,
	}

	h := NewHandlers(st, objects, dispatcher, registry, cfg, log)
	r := gin.New()
	projects := r.Group("/api/v1/projects/:projectId")
	projects.POST("/files", h.Project.UploadFile)
	projects.POST("/pipeline", h.Project.StartPipeline)
	projects.POST("/reset", h.Project.ResetPipeline)
	projects.GET("/progress", h.Project.GetProgress)
	projects.GET("/events", h.Project.StreamEvents)

	return &apiFixture{
		store:    st,
		queue:    queue,
		registry: registry,
		objects:  objects,
		router:   r,
	}
}

func (f *apiFixture) upload(t *testing.T, projectID, filename, content string) UploadResponse {
	t.Helper()
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/"+projectID+"/files", body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestUploadFileCreatesProjectAndStoresObject(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	resp := f.upload(t, "p1", "notes.txt", "First paragraph.")
	assert.Equal(t, "p1", resp.ProjectID)
	// The multipart part carries no useful content type; the extension wins.
	assert.Equal(t, "text/plain", resp.MimeType)

	project, err := f.store.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, project.Status)

	file, err := f.store.GetSourceFile(ctx, resp.FileID)
	require.NoError(t, err)
	assert.Equal(t, models.FilePending, file.Status)

	obj, err := f.objects.Get(ctx, file.ObjectKey)
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.", string(data))
}

func TestStartPipelineDefaultsToParse(t *testing.T) {
	f := newAPIFixture(t)

	f.upload(t, "p1", "notes.txt", "First paragraph.")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/pipeline", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result pipeline.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, []string{"parse"}, result.Stages)
	// A full run starts at parse only; later stages follow via transitions.
	assert.Equal(t, []pipeline.Kind{pipeline.KindParseFile}, f.queue.kinds())
}

func TestStartPipelineUnknownProject(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/ghost/pipeline", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetBumpsGenerationOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	f.upload(t, "p1", "notes.txt", "First paragraph.")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/reset", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Generation uint64 `json:"generation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(2), resp.Generation)
}

func TestGetProgressNotFoundWithoutHistory(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/progress", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProgressReturnsLiveState(t *testing.T) {
	f := newAPIFixture(t)

	f.registry.Get("p1").Update(models.StageWrite, 40, "3 of 7 passages written")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/progress", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var state progress.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, models.StageWrite, state.Stage)
	assert.Equal(t, 40, state.Percent)
}

// readUntilEvent scans SSE lines for the given event marker.
func readUntilEvent(t *testing.T, r *bufio.Reader, event string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "event:"+event) {
			return
		}
	}
	t.Fatalf("event %q not seen in stream", event)
}

func TestStreamEventsReleasesSubscriberOnDisconnect(t *testing.T) {
	f := newAPIFixture(t)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/projects/p1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	// The first frame is the state snapshot, sent after the subscription is
	// in place.
	readUntilEvent(t, reader, "state")

	coord, ok := f.registry.Peek("p1")
	require.True(t, ok)
	coord.Update(models.StageParse, 10, "working")
	readUntilEvent(t, reader, "stage")

	// Client walks away; the handler must hand its subscriber back to the
	// coordinator that issued it, or the coordinator stays pinned forever.
	cancel()

	coord.Complete("success", "", "", true)
	require.Eventually(t, func() bool {
		_, live := f.registry.Peek("p1")
		return !live
	}, 2*time.Second, 10*time.Millisecond,
		"coordinator still registered after disconnect and final completion")
}
