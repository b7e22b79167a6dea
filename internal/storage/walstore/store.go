// Package walstore persists the ledger in a write-ahead log and serves reads from memory.
package walstore

import (
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/folio/internal/storage"
	"github.com/vadiminshakov/folio/internal/storage/memory"
)

const (
	defaultDir       = "./wal/ledger"
	segmentThreshold = 1000
	// segments are never rotated away, the log is the only copy of the ledger
	maxSegments     = 1 << 20
	recordKeyPrefix = "ledger_"
	dirPermissions  = 0o755
)

// Store memory store whose mutations are journaled to gowal and replayed on open.
type Store struct {
	*memory.Store
	journal *walJournal
}

type walJournal struct {
	mu  sync.Mutex
	wal *gowal.Wal
}

// Append writes rec as the next WAL entry.
func (j *walJournal) Append(rec memory.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal ledger record")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	return j.wal.Write(j.wal.CurrentIndex()+1, recordKeyPrefix+string(rec.Kind), payload)
}

// Open loads the WAL in dir, replays it and returns a ready store.
func Open(l *zap.Logger, dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "ledger_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init ledger WAL")
	}

	j := &walJournal{wal: wal}
	mem := memory.New(memory.WithJournal(j))

	replayed := 0
	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, recordKeyPrefix) {
			continue
		}
		var rec memory.Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "decode ledger record %s", msg.Key)
		}
		if err := mem.Restore(rec); err != nil {
			_ = wal.Close()
			return nil, errors.Wrapf(err, "restore ledger record %s", msg.Key)
		}
		replayed++
	}
	l.Info("ledger WAL replayed", zap.String("dir", dir), zap.Int("records", replayed))

	return &Store{Store: mem, journal: j}, nil
}

// Close closes the underlying WAL.
func (s *Store) Close() error {
	s.journal.mu.Lock()
	defer s.journal.mu.Unlock()

	return s.journal.wal.Close()
}

var _ storage.Store = (*Store)(nil)
