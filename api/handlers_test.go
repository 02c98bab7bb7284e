package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"camstream/config"
	"camstream/database"
	"camstream/hls"
	"camstream/rtsp"
	"camstream/stream"

	"github.com/gin-gonic/gin"
)

// fakeSession connects instantly and produces no frames
type fakeSession struct {
	status rtsp.Status
	frames chan rtsp.Frame
}

func (f *fakeSession) Connect() error {
	f.status = rtsp.StatusConnected
	return nil
}
func (f *fakeSession) Play() error {
	f.status = rtsp.StatusPlaying
	return nil
}
func (f *fakeSession) Stop() error              { return nil }
func (f *fakeSession) Disconnect() error        { return nil }
func (f *fakeSession) Close() error             { return nil }
func (f *fakeSession) Status() rtsp.Status      { return f.status }
func (f *fakeSession) Frames() <-chan rtsp.Frame { return f.frames }

// fakeTranscoder succeeds without spawning processes
type fakeTranscoder struct {
	root   string
	active map[string]bool
}

func (f *fakeTranscoder) Start(streamID, rtspURL string, quality hls.Quality) (string, error) {
	f.active[streamID] = true
	return filepath.Join(f.root, streamID, "playlist.m3u8"), nil
}
func (f *fakeTranscoder) Stop(streamID string)          { delete(f.active, streamID) }
func (f *fakeTranscoder) IsActive(streamID string) bool { return f.active[streamID] }
func (f *fakeTranscoder) PlaylistURL(streamID string) string {
	return "/api/v1/streams/" + streamID + "/hls/playlist.m3u8"
}
func (f *fakeTranscoder) SetOnExit(func(streamID string)) {}
func (f *fakeTranscoder) Cleanup()                        { f.active = make(map[string]bool) }

func newTestServer(t *testing.T) (*Server, *gin.Engine, database.Database) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir := t.TempDir()
	db, err := database.NewSQLiteDB(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Config{
		ServerPort:        "0",
		HLSRoot:           filepath.Join(tempDir, "hls"),
		ConnectTimeout:    time.Second,
		FrameBufferSize:   8,
		StreamIdleTimeout: 30 * time.Minute,
	}
	os.MkdirAll(cfg.HLSRoot, 0755)

	dial := func(rtsp.Config) rtsp.Session {
		return &fakeSession{frames: make(chan rtsp.Frame, 1)}
	}
	manager := stream.NewManager(cfg, db, &fakeTranscoder{root: cfg.HLSRoot, active: make(map[string]bool)}, nil, dial)
	t.Cleanup(manager.Close)

	server := NewServer(cfg, db, manager, nil)
	return server, server.Router(), db
}

func doRequest(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStartStreamUnknownCamera(t *testing.T) {
	_, router, _ := newTestServer(t)

	w := doRequest(router, "POST", "/api/v1/cameras/ghost/stream/start", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestStreamLifecycleOverHTTP(t *testing.T) {
	_, router, db := newTestServer(t)

	db.CreateCamera(database.Camera{ID: "cam-1", Name: "Door", URL: "rtsp://10.0.0.5:554/s1"})

	// Start
	w := doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var startResp struct {
		StreamID string `json:"streamId"`
		HlsURL   string `json:"hlsUrl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &startResp); err != nil {
		t.Fatalf("Bad start response: %v", err)
	}
	if startResp.StreamID == "" {
		t.Fatal("Expected a stream ID")
	}
	if !strings.Contains(startResp.HlsURL, startResp.StreamID) {
		t.Errorf("HLS URL %q does not reference stream %q", startResp.HlsURL, startResp.StreamID)
	}

	// Restart is idempotent
	w = doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Restart: expected 200, got %d", w.Code)
	}
	var again struct {
		StreamID string `json:"streamId"`
	}
	json.Unmarshal(w.Body.Bytes(), &again)
	if again.StreamID != startResp.StreamID {
		t.Errorf("Expected same stream ID on repeat start")
	}

	// Status reports active
	w = doRequest(router, "GET", "/api/v1/cameras/cam-1/stream/status", "")
	var status struct {
		Active   bool   `json:"active"`
		StreamID string `json:"streamId"`
	}
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status.Active || status.StreamID != startResp.StreamID {
		t.Errorf("Unexpected status: %s", w.Body.String())
	}

	// Quality change
	w = doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/quality", `{"quality":"HIGH"}`)
	if w.Code != http.StatusOK {
		t.Errorf("SetQuality: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Stop
	w = doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/stop", "")
	if w.Code != http.StatusOK {
		t.Errorf("Stop: expected 200, got %d", w.Code)
	}

	// Second stop is a not-found no-op
	w = doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/stop", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Double stop: expected 404, got %d", w.Code)
	}

	// Status reports inactive
	w = doRequest(router, "GET", "/api/v1/cameras/cam-1/stream/status", "")
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Active {
		t.Errorf("Expected inactive after stop: %s", w.Body.String())
	}
}

func TestSetQualityValidation(t *testing.T) {
	_, router, _ := newTestServer(t)

	w := doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/quality", `{"quality":"4K"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown quality, got %d", w.Code)
	}

	w = doRequest(router, "POST", "/api/v1/cameras/cam-1/stream/quality", `{"quality":"HIGH"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for inactive camera, got %d", w.Code)
	}
}

func TestServePlaylistRewritesSegments(t *testing.T) {
	server, router, _ := newTestServer(t)

	streamDir := filepath.Join(server.config.HLSRoot, "s1")
	os.MkdirAll(streamDir, 0755)
	playlist := "#EXTM3U\n#EXT-X-VERSION:3\n#EXTINF:4.0,\nsegment_000.ts\n#EXTINF:4.0,\nsegment_001.ts\n"
	os.WriteFile(filepath.Join(streamDir, "playlist.m3u8"), []byte(playlist), 0644)

	w := doRequest(router, "GET", "/api/v1/streams/s1/hls/playlist.m3u8", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.apple.mpegurl" {
		t.Errorf("Unexpected content type %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "/api/v1/streams/s1/hls/segment_000.ts") {
		t.Errorf("Segment references not rewritten: %s", body)
	}
	if strings.Contains(body, "\nsegment_000.ts") {
		t.Errorf("Bare segment reference survived rewrite: %s", body)
	}

	w = doRequest(router, "GET", "/api/v1/streams/missing/hls/playlist.m3u8", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing playlist, got %d", w.Code)
	}
}

func TestServeSegmentValidation(t *testing.T) {
	server, router, _ := newTestServer(t)

	streamDir := filepath.Join(server.config.HLSRoot, "s1")
	os.MkdirAll(streamDir, 0755)
	os.WriteFile(filepath.Join(streamDir, "segment_000.ts"), []byte("ts-bytes"), 0644)

	// Valid segment is served
	w := doRequest(router, "GET", "/api/v1/streams/s1/hls/segment_000.ts", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for valid segment, got %d", w.Code)
	}

	// Names off the exact pattern are rejected
	for _, name := range []string{
		"segment_000.ts.bak",
		"segment_abc.ts",
		"config.yaml",
		"segment_000.mp4",
		"..segment_000.ts",
	} {
		w := doRequest(router, "GET", "/api/v1/streams/s1/hls/"+name, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %q, got %d", name, w.Code)
		}
	}

	// Bad stream IDs are rejected before touching the filesystem
	w = doRequest(router, "GET", "/api/v1/streams/s1%2F..%2Fs2/hls/segment_000.ts", "")
	if w.Code == http.StatusOK {
		t.Errorf("Traversal via stream ID served a file")
	}

	// Valid name, missing file
	w = doRequest(router, "GET", "/api/v1/streams/s1/hls/segment_999.ts", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing segment, got %d", w.Code)
	}
}

func TestCameraCRUD(t *testing.T) {
	_, router, _ := newTestServer(t)

	w := doRequest(router, "POST", "/api/v1/cameras", `{"name":"Garage","url":"rtsp://10.0.0.6:554/s1","password":"hunter2"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("Expected generated camera ID")
	}

	w = doRequest(router, "GET", "/api/v1/cameras/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Get: expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "hunter2") {
		t.Error("Camera password leaked over the API")
	}

	w = doRequest(router, "GET", "/api/v1/cameras", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Garage") {
		t.Errorf("List: unexpected response %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(router, "DELETE", "/api/v1/cameras/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Errorf("Delete: expected 200, got %d", w.Code)
	}
	w = doRequest(router, "GET", "/api/v1/cameras/"+created.ID, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Get after delete: expected 404, got %d", w.Code)
	}

	w = doRequest(router, "POST", "/api/v1/cameras", `{"name":"NoURL"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Create without URL: expected 400, got %d", w.Code)
	}
}
