package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/swarmguard/taskexecutor/internal/transfer"
)

var bucketBroadcast = []byte("broadcast")

// BroadcastManagerWorker is the process-wide registry broadcast-tagged
// incoming stage edges are registered with (spec §3, §4.1 step 7, §5:
// "registered once with a process-wide BroadcastManagerWorker keyed by
// broadcast id"). Values are drained from their reader at registration,
// cached in memory, and persisted to a BoltDB file so Broadcast can also
// resolve a value registered in an earlier process lifetime. Every
// RegisterReader call drains its reader, whether or not a value is
// already persisted under that id.
type BroadcastManagerWorker struct {
	db *bbolt.DB

	mu    sync.RWMutex
	cache map[string]any
}

// NewBroadcastManagerWorker opens (creating if absent) the BoltDB file at
// path and returns a ready BroadcastManagerWorker.
func NewBroadcastManagerWorker(path string) (*BroadcastManagerWorker, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open broadcast cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBroadcast)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create broadcast bucket: %w", err)
	}
	return &BroadcastManagerWorker{db: db, cache: make(map[string]any)}, nil
}

// Close releases the underlying BoltDB handle.
func (b *BroadcastManagerWorker) Close() error { return b.db.Close() }

// RegisterReader drains reader to completion and stores its last
// observed data element under broadcastID, both in memory and on disk.
// Draining happens synchronously at registration time: broadcast edges
// are small, bounded values by construction, not streaming data.
func (b *BroadcastManagerWorker) RegisterReader(broadcastID string, reader transfer.InputReader) {
	ctx := context.Background()
	var last any
	for {
		elem, err := reader.Fetch(ctx)
		if err != nil {
			slog.Error("broadcast reader failed", "broadcast_id", broadcastID, "error", err)
			return
		}
		if elem.IsFinishmark() {
			break
		}
		if _, ok := elem.IsWatermark(); ok {
			continue
		}
		last = elem.Payload
	}
	b.put(broadcastID, last)
}

func (b *BroadcastManagerWorker) put(broadcastID string, value any) {
	b.mu.Lock()
	b.cache[broadcastID] = value
	b.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("broadcast value not json-serializable, skipping persistence", "broadcast_id", broadcastID, "error", err)
		return
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBroadcast).Put([]byte(broadcastID), data)
	})
	if err != nil {
		slog.Error("broadcast persistence failed", "broadcast_id", broadcastID, "error", err)
	}
}

// Broadcast resolves a broadcast variable by id, satisfying ir.BroadcastReader.
// It checks the in-memory cache first, falling back to BoltDB for a value
// registered in a prior process lifetime.
func (b *BroadcastManagerWorker) Broadcast(id string) (any, bool) {
	b.mu.RLock()
	v, ok := b.cache[id]
	b.mu.RUnlock()
	if ok {
		return v, true
	}

	var raw []byte
	_ = b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketBroadcast).Get([]byte(id)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		slog.Error("broadcast value corrupt", "broadcast_id", id, "error", err)
		return nil, false
	}
	b.mu.Lock()
	b.cache[id] = decoded
	b.mu.Unlock()
	return decoded, true
}
