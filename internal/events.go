package internal

import "time"

// Event kinds fanned out to room watchers.
const (
	EventFilesAdded     = "files-added"
	EventFileDownloaded = "file-downloaded"
	EventRoomDestroyed  = "room-destroyed"
)

// Destroy reasons carried in a room-destroyed payload.
const (
	DestroyReasonExplicit = "destroyed"
	DestroyReasonExpired  = "expired"
)

// Event is the json envelope pushed to every subscriber of a room channel.
type Event struct {
	Room    string `json:"room"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload,omitempty"`
	Ts      int64  `json:"ts"`
}

// FilesAddedPayload carries the records of one upload batch.
type FilesAddedPayload struct {
	Files []FileRecord `json:"files"`
}

// FileDownloadedPayload names which file was fetched and by whom.
type FileDownloadedPayload struct {
	Index        int    `json:"index"`
	OriginalName string `json:"original_name"`
	By           string `json:"by"`
}

// RoomDestroyedPayload tells watchers why their room went away.
type RoomDestroyedPayload struct {
	Reason string `json:"reason"`
}

// Broadcaster is the narrow contract the registry's callers and the sweeper
// publish through. Join/leave live on the transport (the websocket hub); the
// core never depends on them.
type Broadcaster interface {
	Publish(room string, event Event)
}

// NopBroadcaster backs the polling notification mode: clients hit the timer
// and snapshot endpoints instead of holding a socket.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(string, Event) {}

// NewEvent stamps an envelope with the current wall clock.
func NewEvent(room, kind string, payload any) Event {
	return Event{Room: room, Kind: kind, Payload: payload, Ts: time.Now().Unix()}
}
