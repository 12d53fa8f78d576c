package internal

import (
	"fmt"
	"strings"
	"time"
)

// FileRecord describes one file shared into a room. StoredRef is the opaque
// handle the blob store returned; the registry only carries it back out on
// destroy, it never looks inside.
type FileRecord struct {
	Index        int    `json:"index"`
	OriginalName string `json:"original_name"`
	StoredRef    string `json:"-"`
	SizeBytes    int64  `json:"size_bytes"`
	Type         string `json:"type"`
	Sender       string `json:"sender"`
}

// HistoryEntry is one line of a room's activity trail, most-recent-last.
type HistoryEntry struct {
	User   string    `json:"user"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// room is the registry-internal state. All fields are guarded by the
// registry mutex; nothing outside the registry ever holds a *room.
type room struct {
	code      string
	createdAt time.Time
	files     []FileRecord
	history   []HistoryEntry
}

// RoomSnapshot is the read-only view handed to the response layer. Files and
// History are copies, so a concurrent mutation never shows through.
type RoomSnapshot struct {
	Code      string
	CreatedAt time.Time
	Age       time.Duration
	Remaining time.Duration
	Files     []FileRecord
	History   []HistoryEntry
}

// Expired reports whether the room had already outlived its TTL when the
// snapshot was taken.
func (s RoomSnapshot) Expired() bool {
	return s.Remaining <= 0
}

// fileTypeFromName derives the display type from the name extension,
// uppercased, falling back to "FILE" when there is none.
func fileTypeFromName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return "FILE"
	}
	return strings.ToUpper(name[idx+1:])
}

// humanSize renders a byte count the way the room view shows it.
func humanSize(sizeBytes int64) string {
	size := float64(sizeBytes)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", size)
}
