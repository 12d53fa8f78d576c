package internal

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fileportal/internal/blobstore"
	"fileportal/internal/storage"
)

type testServer struct {
	http     *httptest.Server
	client   *http.Client
	registry *Registry
	events   *captureBroadcaster
	upload   string
}

func newTestServer(t *testing.T, ttl time.Duration) *testServer {
	t.Helper()

	store, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(t.Context()))
	t.Cleanup(func() { _ = store.Close() })

	uploadDir := t.TempDir()
	blobs, err := blobstore.NewDiskStore(uploadDir)
	require.NoError(t, err)

	registry := NewRegistry(ttl)
	events := &captureBroadcaster{}
	metrics := NewMetrics()
	log := slog.Default()

	hub := NewHub(NewPresenceTracker(), metrics, log)
	relay := &relayBroadcaster{capture: events, hub: hub}

	server := NewServer(ServerParams{
		Registry:       registry,
		Blobs:          blobs,
		Events:         relay,
		Hub:            hub,
		Identity:       NewIdentityProvider(store, time.Hour, log),
		Metrics:        metrics,
		MaxUploadBytes: 32 << 20,
		Log:            log,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", server.HandleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", server.HandleJoinRoom)
	mux.HandleFunc("GET /api/rooms/{code}", server.HandleRoom)
	mux.HandleFunc("DELETE /api/rooms/{code}", server.HandleDestroy)
	mux.HandleFunc("POST /api/rooms/{code}/files", server.HandleUpload)
	mux.HandleFunc("GET /api/rooms/{code}/files/{index}", server.HandleDownload)
	mux.HandleFunc("GET /api/rooms/{code}/timer", server.HandleTimer)
	mux.HandleFunc("GET /exists", server.HandleRoomExists)
	mux.HandleFunc("GET /watch", server.HandleWatch)

	httpServer := httptest.NewServer(mux)
	t.Cleanup(httpServer.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		http:     httpServer,
		client:   &http.Client{Jar: jar},
		registry: registry,
		events:   events,
		upload:   uploadDir,
	}
}

// relayBroadcaster records events and forwards them to the hub, so tests can
// assert publish counts while websocket watchers still receive frames.
type relayBroadcaster struct {
	capture *captureBroadcaster
	hub     *Hub
}

func (r *relayBroadcaster) Publish(room string, event Event) {
	r.capture.Publish(room, event)
	r.hub.Publish(room, event)
}

func (ts *testServer) createRoom(t *testing.T) createRoomResponse {
	t.Helper()
	resp, err := ts.client.Post(ts.http.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func (ts *testServer) uploadFiles(t *testing.T, code string, files map[string]string) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, content := range files {
		part, err := writer.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/api/rooms/"+code+"/files", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (ts *testServer) getRoom(t *testing.T, code string) (roomResponse, int) {
	t.Helper()
	resp, err := ts.client.Get(ts.http.URL + "/api/rooms/" + code)
	require.NoError(t, err)
	defer resp.Body.Close()
	var view roomResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	}
	return view, resp.StatusCode
}

func TestCreateRoomReturnsFreshCode(t *testing.T) {
	ts := newTestServer(t, 30*time.Minute)

	created := ts.createRoom(t)
	require.True(t, ValidCode(created.Code))
	require.NotEmpty(t, created.Username)
	require.InDelta(t, 30*60, created.RemainingSeconds, 2)

	view, status := ts.getRoom(t, created.Code)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, view.Files)
	require.Len(t, view.History, 1)
	require.Equal(t, "created the room (Host)", view.History[0].Action)
	require.Equal(t, created.Username, view.History[0].User)
}

func TestIdentitySurvivesAcrossRequests(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	first := ts.createRoom(t)
	second := ts.createRoom(t)
	require.Equal(t, first.Username, second.Username, "the session cookie pins the generated name")
}

func TestUploadThenDownloadFlow(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	resp := ts.uploadFiles(t, created.Code, map[string]string{
		"report.pdf": "pdf-bytes",
		"notes.txt":  "some notes",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	require.Equal(t, 2, uploaded.Uploaded)
	require.Len(t, uploaded.Files, 2)

	indexes := []int{uploaded.Files[0].Index, uploaded.Files[1].Index}
	require.ElementsMatch(t, []int{0, 1}, indexes)

	published := ts.events.published()
	require.Len(t, published, 1, "one batch means one files-added event")
	require.Equal(t, EventFilesAdded, published[0].Kind)
	payload, ok := published[0].Payload.(FilesAddedPayload)
	require.True(t, ok)
	require.Len(t, payload.Files, 2)

	view, status := ts.getRoom(t, created.Code)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, view.Files, 2)
	require.NotEmpty(t, view.Files[0].HumanSize)

	var wantBody, wantName string
	for _, f := range view.Files {
		if f.Index == 1 {
			wantName = f.OriginalName
		}
	}
	if wantName == "report.pdf" {
		wantBody = "pdf-bytes"
	} else {
		wantBody = "some notes"
	}

	dlResp, err := ts.client.Get(ts.http.URL + "/api/rooms/" + created.Code + "/files/1")
	require.NoError(t, err)
	defer dlResp.Body.Close()
	require.Equal(t, http.StatusOK, dlResp.StatusCode)
	require.Contains(t, dlResp.Header.Get("Content-Disposition"), wantName)
	body, err := io.ReadAll(dlResp.Body)
	require.NoError(t, err)
	require.Equal(t, wantBody, string(body))

	published = ts.events.published()
	require.Len(t, published, 2)
	require.Equal(t, EventFileDownloaded, published[1].Kind)

	view, _ = ts.getRoom(t, created.Code)
	var actions []string
	for _, entry := range view.History {
		actions = append(actions, entry.Action)
	}
	require.Contains(t, actions, "sent file: report.pdf")
	require.Contains(t, actions, "sent file: notes.txt")
	require.Contains(t, actions, "downloaded: "+wantName)
}

func TestDownloadOutOfRange(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	resp, err := ts.client.Get(ts.http.URL + "/api/rooms/" + created.Code + "/files/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = ts.client.Get(ts.http.URL + "/api/rooms/000000/files/0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadToMissingRoom(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	resp := ts.uploadFiles(t, "123456", map[string]string{"a.txt": "data"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Empty(t, ts.events.published())
}

func TestDestroyRemovesRoomAndBlobs(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	upResp := ts.uploadFiles(t, created.Code, map[string]string{"a.txt": "data"})
	_ = upResp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.http.URL+"/api/rooms/"+created.Code, nil)
	require.NoError(t, err)
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, status := ts.getRoom(t, created.Code)
	require.Equal(t, http.StatusNotFound, status)

	// Only the tmp staging dir survives under the upload root.
	entries, err := os.ReadDir(ts.upload)
	require.NoError(t, err)
	for _, entry := range entries {
		require.Equal(t, "tmp", entry.Name(), "unexpected leftover blob %s", filepath.Join(ts.upload, entry.Name()))
	}

	published := ts.events.published()
	last := published[len(published)-1]
	require.Equal(t, EventRoomDestroyed, last.Kind)
	payload, ok := last.Payload.(RoomDestroyedPayload)
	require.True(t, ok)
	require.Equal(t, DestroyReasonExplicit, payload.Reason)

	// A second destroy finds nothing.
	resp, err = ts.client.Do(req.Clone(t.Context()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Len(t, ts.events.published(), len(published), "no extra destroy event")
}

func TestJoinValidation(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	resp, err := ts.client.Post(ts.http.URL+"/api/rooms/abc/join", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = ts.client.Post(ts.http.URL+"/api/rooms/123456/join", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	created := ts.createRoom(t)
	resp, err = ts.client.Post(ts.http.URL+"/api/rooms/"+created.Code+"/join", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view roomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.Len(t, view.History, 2)
	require.Equal(t, "joined the room", view.History[1].Action)
}

func TestTimerEndpoint(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	resp, err := ts.client.Get(ts.http.URL + "/api/rooms/" + created.Code + "/timer")
	require.NoError(t, err)
	defer resp.Body.Close()
	var timer timerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&timer))
	require.False(t, timer.Expired)
	require.Greater(t, timer.RemainingSeconds, int64(0))

	resp, err = ts.client.Get(ts.http.URL + "/api/rooms/000000/timer")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&timer))
	require.True(t, timer.Expired)
	require.Equal(t, int64(0), timer.RemainingSeconds)
}

func TestExistsProbe(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	resp, err := ts.client.Get(ts.http.URL + "/exists?room=" + created.Code)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.client.Get(ts.http.URL + "/exists?room=000000")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateRoomRateLimit(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	var lastStatus int
	for i := 0; i < 11; i++ {
		resp, err := ts.client.Post(ts.http.URL+"/api/rooms", "application/json", nil)
		require.NoError(t, err)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		lastStatus = resp.StatusCode
	}
	require.Equal(t, http.StatusTooManyRequests, lastStatus)
}

func TestUploadRejectsMissingFileField(t *testing.T) {
	ts := newTestServer(t, time.Hour)
	created := ts.createRoom(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("note", "not a file"))
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/api/rooms/"+created.Code+"/files", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	data, _ := io.ReadAll(resp.Body)
	require.True(t, strings.Contains(string(data), "no file provided"))
}
