package internal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(ttl time.Duration) (*Registry, *time.Time) {
	registry := NewRegistry(ttl)
	current := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }
	return registry, &current
}

func TestCreateRoomStartsEmpty(t *testing.T) {
	registry, _ := newTestRegistry(30 * time.Minute)

	snap := registry.CreateRoom()
	require.True(t, ValidCode(snap.Code))
	require.Empty(t, snap.Files)
	require.Empty(t, snap.History)
	require.Equal(t, 30*time.Minute, snap.Remaining)
	require.False(t, snap.Expired())
	require.True(t, registry.Exists(snap.Code))
}

func TestCreateRoomCodesAreUnique(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		snap := registry.CreateRoom()
		require.False(t, seen[snap.Code], "code %s handed out twice", snap.Code)
		seen[snap.Code] = true
	}
	require.Equal(t, 500, registry.Len())
}

func TestCreateExplicitCodeRejectsCollision(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	require.NoError(t, registry.Create("123456"))
	require.ErrorIs(t, registry.Create("123456"), ErrRoomExists)
}

func TestConcurrentCreationNeverSharesACode(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)

	const workers = 50
	codes := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- registry.CreateRoom().Code
		}()
	}
	wg.Wait()
	close(codes)

	seen := make(map[string]bool)
	for code := range codes {
		require.False(t, seen[code])
		seen[code] = true
	}
	require.Len(t, seen, workers)
}

func TestAppendFileAssignsDenseIndexes(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code

	const uploads = 64
	var wg sync.WaitGroup
	indexes := make(chan int, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			index, err := registry.AppendFile(code, FileRecord{OriginalName: "a.txt"})
			require.NoError(t, err)
			indexes <- index
		}()
	}
	wg.Wait()
	close(indexes)

	seen := make(map[int]bool)
	for index := range indexes {
		require.False(t, seen[index], "index %d assigned twice", index)
		require.GreaterOrEqual(t, index, 0)
		require.Less(t, index, uploads)
		seen[index] = true
	}
	require.Len(t, seen, uploads)
}

func TestFileAtRevalidatesBounds(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code

	_, err := registry.FileAt(code, 0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	index, err := registry.AppendFile(code, FileRecord{OriginalName: "notes.pdf", StoredRef: "ref-1"})
	require.NoError(t, err)
	require.Equal(t, 0, index)

	rec, err := registry.FileAt(code, 0)
	require.NoError(t, err)
	require.Equal(t, "notes.pdf", rec.OriginalName)
	require.Equal(t, "ref-1", rec.StoredRef)

	_, err = registry.FileAt(code, 1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = registry.FileAt(code, -1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = registry.FileAt("000000", 0)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestHistoryIsAppendedInOrder(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code

	require.NoError(t, registry.AppendHistory(code, "Swift-Fox-42", "created the room (Host)"))
	require.NoError(t, registry.AppendHistory(code, "Neon-Owl-17", "joined the room"))
	require.NoError(t, registry.AppendHistory(code, "Neon-Owl-17", "sent file: a.txt"))

	snap, err := registry.Snapshot(code)
	require.NoError(t, err)
	require.Len(t, snap.History, 3)
	require.Equal(t, "created the room (Host)", snap.History[0].Action)
	require.Equal(t, "sent file: a.txt", snap.History[2].Action)
}

func TestSnapshotIsIsolatedFromLaterMutations(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code

	_, err := registry.AppendFile(code, FileRecord{OriginalName: "one.txt"})
	require.NoError(t, err)

	snap, err := registry.Snapshot(code)
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)

	_, err = registry.AppendFile(code, FileRecord{OriginalName: "two.txt"})
	require.NoError(t, err)
	require.Len(t, snap.Files, 1, "snapshot must not observe later appends")
}

func TestDestroyHandsBackRefsExactlyOnce(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code

	_, err := registry.AppendFile(code, FileRecord{OriginalName: "a.txt", StoredRef: "ref-a"})
	require.NoError(t, err)
	_, err = registry.AppendFile(code, FileRecord{OriginalName: "b.txt", StoredRef: "ref-b"})
	require.NoError(t, err)

	refs, err := registry.Destroy(code)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ref-a", "ref-b"}, refs)
	require.False(t, registry.Exists(code))

	_, err = registry.Destroy(code)
	require.ErrorIs(t, err, ErrRoomNotFound)
	_, err = registry.Snapshot(code)
	require.ErrorIs(t, err, ErrRoomNotFound)
	err = registry.AppendHistory(code, "anyone", "joined the room")
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConcurrentDestroySingleWinner(t *testing.T) {
	registry, _ := newTestRegistry(time.Hour)
	code := registry.CreateRoom().Code
	_, err := registry.AppendFile(code, FileRecord{StoredRef: "ref-a"})
	require.NoError(t, err)

	const racers = 16
	wins := make(chan []string, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := registry.Destroy(code)
			if err == nil {
				wins <- refs
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners [][]string
	for refs := range wins {
		winners = append(winners, refs)
	}
	require.Len(t, winners, 1, "exactly one destroyer may receive the refs")
	require.Equal(t, []string{"ref-a"}, winners[0])
}

func TestExpiredCodesUsesTheClock(t *testing.T) {
	registry, clock := newTestRegistry(30 * time.Minute)

	early := registry.CreateRoom().Code
	*clock = clock.Add(20 * time.Minute)
	late := registry.CreateRoom().Code

	require.Empty(t, registry.ExpiredCodes())

	*clock = clock.Add(10*time.Minute + time.Second)
	expired := registry.ExpiredCodes()
	require.Equal(t, []string{early}, expired)
	require.True(t, registry.Exists(early), "listing must not remove the room")

	snap, err := registry.Snapshot(early)
	require.NoError(t, err)
	require.True(t, snap.Expired())

	snap, err = registry.Snapshot(late)
	require.NoError(t, err)
	require.False(t, snap.Expired())
}
