package internal

import (
	"errors"
	"sync"
	"time"
)

// ErrRoomNotFound is returned when a code is absent, already destroyed, or
// already swept.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomExists is returned by the defensive explicit-code create path.
var ErrRoomExists = errors.New("room already exists")

// ErrIndexOutOfRange is returned when a file index is past the room's
// current file count.
var ErrIndexOutOfRange = errors.New("file index out of range")

// Registry is the guarded in-memory map of all live rooms. One mutex
// serializes every mutation; it is held only for map and slice work, never
// across blob deletion or event publication. Operations on different rooms
// contend only on that short critical section.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
	codes *CodeAllocator
	ttl   time.Duration

	// now is swapped for a virtual clock in tests.
	now func() time.Time
}

// NewRegistry builds an empty registry whose rooms expire after ttl.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		rooms: make(map[string]*room),
		codes: NewCodeAllocator(),
		ttl:   ttl,
		now:   time.Now,
	}
}

// TTL returns the configured room lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// CreateRoom allocates a free code and inserts the new empty room under one
// lock acquisition, so two concurrent creations can never share a code. The
// retry loop has no upper bound; with 10^6 codes against a handful of live
// rooms it terminates on the first draw in practice.
func (r *Registry) CreateRoom() RoomSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var code string
	for {
		code = r.codes.Next()
		if _, taken := r.rooms[code]; !taken {
			break
		}
	}
	rm := &room{code: code, createdAt: r.now()}
	r.rooms[code] = rm
	return r.snapshotLocked(rm)
}

// Create inserts a room under an explicit code. The collision check is
// defensive: the allocating path cannot produce one, but an overwrite here
// would silently orphan another room's blobs.
func (r *Registry) Create(code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.rooms[code]; taken {
		return ErrRoomExists
	}
	r.rooms[code] = &room{code: code, createdAt: r.now()}
	return nil
}

// Exists reports whether a room with the given code is currently live.
func (r *Registry) Exists(code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[code]
	return ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// Snapshot returns a consistent copy of the room's current state. The slices
// are copied under the lock, so a reader never observes a half-applied
// mutation.
func (r *Registry) Snapshot(code string) (RoomSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return RoomSnapshot{}, ErrRoomNotFound
	}
	return r.snapshotLocked(rm), nil
}

func (r *Registry) snapshotLocked(rm *room) RoomSnapshot {
	age := r.now().Sub(rm.createdAt)
	snap := RoomSnapshot{
		Code:      rm.code,
		CreatedAt: rm.createdAt,
		Age:       age,
		Remaining: r.ttl - age,
		Files:     make([]FileRecord, len(rm.files)),
		History:   make([]HistoryEntry, len(rm.history)),
	}
	copy(snap.Files, rm.files)
	copy(snap.History, rm.history)
	return snap
}

// AppendFile assigns the next dense index to rec, appends it, and returns the
// index. Concurrent appends to the same room are linearized by the lock, so
// the resulting index set is always {0..n-1} with no duplicates or gaps.
func (r *Registry) AppendFile(code string, rec FileRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return 0, ErrRoomNotFound
	}
	rec.Index = len(rm.files)
	rm.files = append(rm.files, rec)
	return rec.Index, nil
}

// FileAt re-validates existence and bounds at the point of use. A room
// destroyed between a snapshot and a download resolves here to ErrRoomNotFound,
// a stale index to ErrIndexOutOfRange.
func (r *Registry) FileAt(code string, index int) (FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return FileRecord{}, ErrRoomNotFound
	}
	if index < 0 || index >= len(rm.files) {
		return FileRecord{}, ErrIndexOutOfRange
	}
	return rm.files[index], nil
}

// AppendHistory records an action at the end of the room's trail
// (ascending chronological order).
func (r *Registry) AppendHistory(code, user, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return ErrRoomNotFound
	}
	rm.history = append(rm.history, HistoryEntry{User: user, Action: action, At: r.now()})
	return nil
}

// Destroy removes the room and hands back every blob ref it owned, exactly
// once, for the caller to delete outside the lock. A second destroy of the
// same code returns ErrRoomNotFound.
func (r *Registry) Destroy(code string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	delete(r.rooms, code)
	refs := make([]string, 0, len(rm.files))
	for _, f := range rm.files {
		refs = append(refs, f.StoredRef)
	}
	return refs, nil
}

// ExpiredCodes lists rooms whose age exceeds the TTL without removing them.
// The sweeper decides and then destroys per code.
func (r *Registry) ExpiredCodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []string
	for code, rm := range r.rooms {
		if now.Sub(rm.createdAt) > r.ttl {
			expired = append(expired, code)
		}
	}
	return expired
}
