package internal

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

type Metrics struct {
	roomsCreated    atomic.Uint64
	roomsDestroyed  atomic.Uint64
	roomsExpired    atomic.Uint64
	filesUploaded   atomic.Uint64
	filesDownloaded atomic.Uint64
	bytesUploaded   atomic.Uint64
	activeWatchers  atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncRoomCreated() {
	m.roomsCreated.Add(1)
}

func (m *Metrics) IncRoomDestroyed() {
	m.roomsDestroyed.Add(1)
}

func (m *Metrics) IncRoomExpired() {
	m.roomsExpired.Add(1)
}

func (m *Metrics) AddFilesUploaded(count int, bytes int64) {
	m.filesUploaded.Add(uint64(count))
	m.bytesUploaded.Add(uint64(bytes))
}

func (m *Metrics) IncFileDownloaded() {
	m.filesDownloaded.Add(1)
}

func (m *Metrics) IncWatcher() {
	m.activeWatchers.Add(1)
}

func (m *Metrics) DecWatcher() {
	m.activeWatchers.Add(-1)
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"rooms_created_total":    m.roomsCreated.Load(),
		"rooms_destroyed_total":  m.roomsDestroyed.Load(),
		"rooms_expired_total":    m.roomsExpired.Load(),
		"files_uploaded_total":   m.filesUploaded.Load(),
		"files_downloaded_total": m.filesDownloaded.Load(),
		"bytes_uploaded_total":   m.bytesUploaded.Load(),
		"active_watchers":        m.activeWatchers.Load(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
