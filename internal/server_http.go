package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"fileportal/internal/blobstore"
)

// Server holds the handler dependencies. The registry instance is passed in
// explicitly; there is no package-level room state anywhere.
type Server struct {
	registry       *Registry
	blobs          blobstore.Store
	events         Broadcaster
	hub            *Hub
	identity       *IdentityProvider
	metrics        *Metrics
	createLimiter  *RateLimiter
	maxUploadBytes int64
	log            *slog.Logger
}

// ServerParams collects the collaborators NewServer wires together. Hub may
// be nil when the notification mode is polling; Events must then be a
// NopBroadcaster.
type ServerParams struct {
	Registry       *Registry
	Blobs          blobstore.Store
	Events         Broadcaster
	Hub            *Hub
	Identity       *IdentityProvider
	Metrics        *Metrics
	MaxUploadBytes int64
	Log            *slog.Logger
}

func NewServer(p ServerParams) *Server {
	return &Server{
		registry:       p.Registry,
		blobs:          p.Blobs,
		events:         p.Events,
		hub:            p.Hub,
		identity:       p.Identity,
		metrics:        p.Metrics,
		createLimiter:  NewRateLimiter(10, time.Minute),
		maxUploadBytes: p.MaxUploadBytes,
		log:            p.Log,
	}
}

type fileDTO struct {
	Index        int    `json:"index"`
	OriginalName string `json:"original_name"`
	SizeBytes    int64  `json:"size_bytes"`
	HumanSize    string `json:"human_size"`
	Type         string `json:"type"`
	Sender       string `json:"sender"`
}

type historyDTO struct {
	User   string `json:"user"`
	Action string `json:"action"`
	Ts     int64  `json:"ts"`
}

type roomResponse struct {
	Code             string       `json:"code"`
	Username         string       `json:"username"`
	CreatedAt        time.Time    `json:"created_at"`
	AgeSeconds       int64        `json:"age_seconds"`
	RemainingSeconds int64        `json:"remaining_seconds"`
	Files            []fileDTO    `json:"files"`
	History          []historyDTO `json:"history"`
}

type createRoomResponse struct {
	Code             string `json:"code"`
	Username         string `json:"username"`
	RemainingSeconds int64  `json:"remaining_seconds"`
}

type uploadResponse struct {
	Uploaded int       `json:"uploaded"`
	Files    []fileDTO `json:"files"`
}

type timerResponse struct {
	Expired          bool  `json:"expired"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

func toRoomResponse(snap RoomSnapshot, username string) roomResponse {
	return roomResponse{
		Code:             snap.Code,
		Username:         username,
		CreatedAt:        snap.CreatedAt,
		AgeSeconds:       int64(snap.Age.Seconds()),
		RemainingSeconds: remainingSeconds(snap),
		Files:            lo.Map(snap.Files, func(f FileRecord, _ int) fileDTO { return toFileDTO(f) }),
		History: lo.Map(snap.History, func(h HistoryEntry, _ int) historyDTO {
			return historyDTO{User: h.User, Action: h.Action, Ts: h.At.Unix()}
		}),
	}
}

func toFileDTO(f FileRecord) fileDTO {
	return fileDTO{
		Index:        f.Index,
		OriginalName: f.OriginalName,
		SizeBytes:    f.SizeBytes,
		HumanSize:    humanSize(f.SizeBytes),
		Type:         f.Type,
		Sender:       f.Sender,
	}
}

func remainingSeconds(snap RoomSnapshot) int64 {
	if snap.Remaining <= 0 {
		return 0
	}
	return int64(snap.Remaining.Seconds())
}

// HandleCreateRoom mints a room with a fresh code. POST /api/rooms
func (s *Server) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if !s.createLimiter.Allow(s.clientIP(r)) {
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	user := s.identity.UserFor(w, r)
	snap := s.registry.CreateRoom()
	_ = s.registry.AppendHistory(snap.Code, user, "created the room (Host)")
	s.metrics.IncRoomCreated()
	s.log.Info("room created", "room", snap.Code, "user", user)
	writeJSON(w, http.StatusCreated, createRoomResponse{
		Code:             snap.Code,
		Username:         user,
		RemainingSeconds: remainingSeconds(snap),
	})
}

// HandleJoinRoom records the join and returns the current view.
// POST /api/rooms/{code}/join
func (s *Server) HandleJoinRoom(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !ValidCode(code) {
		writeError(w, http.StatusBadRequest, errors.New("invalid room code"))
		return
	}
	user := s.identity.UserFor(w, r)
	if err := s.registry.AppendHistory(code, user, "joined the room"); err != nil {
		roomGone(w)
		return
	}
	snap, err := s.registry.Snapshot(code)
	if err != nil {
		roomGone(w)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(snap, user))
}

// HandleRoom serves the read-only snapshot view. GET /api/rooms/{code}
func (s *Server) HandleRoom(w http.ResponseWriter, r *http.Request) {
	user := s.identity.UserFor(w, r)
	snap, err := s.registry.Snapshot(r.PathValue("code"))
	if err != nil {
		roomGone(w)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(snap, user))
}

// HandleUpload accepts a multipart batch of files for a room and publishes a
// single files-added event for the whole batch. POST /api/rooms/{code}/files
func (s *Server) HandleUpload(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !s.registry.Exists(code) {
		roomGone(w)
		return
	}
	user := s.identity.UserFor(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, errors.New("upload too large"))
		return
	}
	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("no file provided"))
		return
	}

	added := make([]FileRecord, 0, len(headers))
	var totalBytes int64
	for _, header := range headers {
		name := filepath.Base(header.Filename)
		if name == "" || name == "." || name == ".." {
			writeError(w, http.StatusBadRequest, errors.New("invalid filename"))
			return
		}
		part, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("read form file: %w", err))
			return
		}
		ref, size, err := s.blobs.Save(r.Context(), part, name)
		_ = part.Close()
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("store file: %w", err))
			return
		}

		rec := FileRecord{
			OriginalName: name,
			StoredRef:    ref,
			SizeBytes:    size,
			Type:         fileTypeFromName(name),
			Sender:       user,
		}
		index, err := s.registry.AppendFile(code, rec)
		if err != nil {
			// The room was destroyed mid-batch. Blobs already appended were
			// handed to whoever destroyed it; this one is ours to remove.
			if delErr := s.blobs.Delete(r.Context(), ref); delErr != nil {
				s.log.Warn("upload: orphan blob delete failed", "ref", ref, "error", delErr)
			}
			roomGone(w)
			return
		}
		rec.Index = index
		_ = s.registry.AppendHistory(code, user, "sent file: "+name)
		added = append(added, rec)
		totalBytes += size
	}

	s.events.Publish(code, NewEvent(code, EventFilesAdded, FilesAddedPayload{Files: added}))
	s.metrics.AddFilesUploaded(len(added), totalBytes)
	s.log.Info("files uploaded", "room", code, "user", user, "count", len(added), "bytes", totalBytes)
	writeJSON(w, http.StatusOK, uploadResponse{
		Uploaded: len(added),
		Files:    lo.Map(added, func(f FileRecord, _ int) fileDTO { return toFileDTO(f) }),
	})
}

// HandleDownload streams one file by index. Existence and bounds are
// re-validated at the point of use; a room destroyed after the client last
// looked resolves to 404, never to a stale read.
// GET /api/rooms/{code}/files/{index}
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid file index"))
		return
	}
	rec, err := s.registry.FileAt(code, index)
	if err != nil {
		if errors.Is(err, ErrIndexOutOfRange) {
			writeError(w, http.StatusNotFound, errors.New("no file at that index"))
			return
		}
		roomGone(w)
		return
	}
	user := s.identity.UserFor(w, r)

	blob, err := s.blobs.Open(r.Context(), rec.StoredRef)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, errors.New("file is no longer available"))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer blob.Close()

	_ = s.registry.AppendHistory(code, user, "downloaded: "+rec.OriginalName)
	s.events.Publish(code, NewEvent(code, EventFileDownloaded, FileDownloadedPayload{
		Index:        rec.Index,
		OriginalName: rec.OriginalName,
		By:           user,
	}))
	s.metrics.IncFileDownloaded()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalName))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	if _, err := io.Copy(w, blob); err != nil {
		s.log.Warn("download: stream interrupted", "room", code, "file", rec.OriginalName, "error", err)
	}
}

// HandleDestroy tears a room down ahead of its TTL. Blob deletion and the
// destroy event happen after the registry has already forgotten the code.
// DELETE /api/rooms/{code}
func (s *Server) HandleDestroy(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	refs, err := s.registry.Destroy(code)
	if err != nil {
		roomGone(w)
		return
	}
	for _, ref := range refs {
		if err := s.blobs.Delete(r.Context(), ref); err != nil {
			s.log.Warn("destroy: blob delete failed", "room", code, "ref", ref, "error", err)
		}
	}
	s.events.Publish(code, NewEvent(code, EventRoomDestroyed, RoomDestroyedPayload{Reason: DestroyReasonExplicit}))
	s.metrics.IncRoomDestroyed()
	s.log.Info("room destroyed", "room", code, "files", len(refs))
	w.WriteHeader(http.StatusNoContent)
}

// HandleTimer is the polling-mode countdown endpoint.
// GET /api/rooms/{code}/timer
func (s *Server) HandleTimer(w http.ResponseWriter, r *http.Request) {
	snap, err := s.registry.Snapshot(r.PathValue("code"))
	if err != nil {
		writeJSON(w, http.StatusOK, timerResponse{Expired: true})
		return
	}
	writeJSON(w, http.StatusOK, timerResponse{
		Expired:          snap.Expired(),
		RemainingSeconds: remainingSeconds(snap),
	})
}

// HandleRoomExists is the lightweight probe clients hit before dialing the
// websocket. GET /exists?room=CODE
func (s *Server) HandleRoomExists(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room")
	if code == "" {
		http.Error(w, "missing room", http.StatusBadRequest)
		return
	}
	if s.registry.Exists(code) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Error(w, "not found", http.StatusNotFound)
}

// HandleWatch subscribes a websocket to a room's event channel. GET /watch?room=CODE
func (s *Server) HandleWatch(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "push notifications disabled", http.StatusNotFound)
		return
	}
	ServeWatch(s.hub, s.registry, w, r)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func roomGone(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("this room has expired or does not exist"))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
