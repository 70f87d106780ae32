// Package snapshot captures a store file into object storage before a
// migration touches it, and restores it from there.
//
// Snapshots are snappy framed streams stored at
// <prefix>/<store>/v<from>-v<to>-<id>.sz, where id is a time-ordered UUID.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	rerrors "github.com/arkilian/realmstore/internal/errors"
	"github.com/arkilian/realmstore/internal/storage"
	"github.com/arkilian/realmstore/internal/tablestore"
)

const extension = ".sz"

// DefaultPrefix is the object prefix used when none is configured.
const DefaultPrefix = "snapshots"

// Snapshot describes one stored snapshot.
type Snapshot struct {
	ID        string    `json:"id" yaml:"id"`
	Store     string    `json:"store" yaml:"store"`
	From      int64     `json:"from" yaml:"from"`
	To        int64     `json:"to" yaml:"to"`
	Object    string    `json:"object" yaml:"object"`
	Size      int64     `json:"size" yaml:"size"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Snapshotter captures and restores store snapshots.
type Snapshotter struct {
	store  storage.ObjectStorage
	prefix string
	logger *slog.Logger
}

// New creates a Snapshotter writing below prefix in store.
func New(store storage.ObjectStorage, prefix string, logger *slog.Logger) *Snapshotter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// StoreName returns the name snapshots of the store at storePath are kept
// under: the file name without its extension.
func StoreName(storePath string) string {
	base := filepath.Base(storePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Capture checkpoints the store at storePath and uploads a compressed copy
// labelled with the migration it precedes. Its signature matches
// realm.Config.BeforeMigration.
func (s *Snapshotter) Capture(ctx context.Context, storePath string, from, to int64) (*Snapshot, error) {
	start := time.Now()

	db, err := tablestore.Open(storePath)
	if err != nil {
		return nil, snapshotError("failed to open store", err)
	}
	defer db.Close()
	if err := db.Checkpoint(ctx); err != nil {
		return nil, snapshotError("failed to checkpoint store", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, snapshotError("failed to generate snapshot id", err)
	}

	tmp, err := os.CreateTemp("", "realmstore-snapshot-*"+extension)
	if err != nil {
		return nil, snapshotError("failed to create temp file", err)
	}
	defer os.Remove(tmp.Name())

	size, err := compress(storePath, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, snapshotError("failed to compress store", err)
	}

	snap := &Snapshot{
		ID:        id.String(),
		Store:     StoreName(storePath),
		From:      from,
		To:        to,
		CreatedAt: time.Now().UTC(),
	}
	snap.Object = s.objectPath(snap)
	if err := s.store.Upload(ctx, tmp.Name(), snap.Object); err != nil {
		return nil, snapshotError("failed to upload snapshot", err)
	}
	if info, err := os.Stat(tmp.Name()); err == nil {
		snap.Size = info.Size()
	}

	s.logger.Info("captured snapshot",
		"store", snap.Store,
		"object", snap.Object,
		"from", from,
		"to", to,
		"raw_bytes", size,
		"compressed_bytes", snap.Size,
		"duration", time.Since(start))
	return snap, nil
}

// Hook adapts Capture to realm.Config.BeforeMigration.
func (s *Snapshotter) Hook() func(ctx context.Context, storePath string, from, to int64) error {
	return func(ctx context.Context, storePath string, from, to int64) error {
		_, err := s.Capture(ctx, storePath, from, to)
		return err
	}
}

// List returns the snapshots of the named store, oldest first.
func (s *Snapshotter) List(ctx context.Context, store string) ([]Snapshot, error) {
	objects, err := s.store.ListObjects(ctx, s.prefix+"/"+store+"/")
	if err != nil {
		return nil, snapshotError("failed to list snapshots", err)
	}

	snaps := make([]Snapshot, 0, len(objects))
	for _, obj := range objects {
		snap, ok := parseObject(obj.Path)
		if !ok || snap.Store != store {
			continue
		}
		snap.Size = obj.Size
		snap.CreatedAt = obj.ModTime
		snaps = append(snaps, snap)
	}
	// v7 ids sort by creation time
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ID < snaps[j].ID })
	return snaps, nil
}

// Latest returns the newest snapshot of the named store.
func (s *Snapshotter) Latest(ctx context.Context, store string) (*Snapshot, error) {
	snaps, err := s.List(ctx, store)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, rerrors.NewStorageError(rerrors.CodeSnapshotFailed,
			fmt.Sprintf("no snapshots for store %q", store), storage.ErrObjectNotFound)
	}
	return &snaps[len(snaps)-1], nil
}

// Restore writes the snapshot object to dest, replacing the store there. The
// caller must make sure no handle has dest open.
func (s *Snapshotter) Restore(ctx context.Context, object, dest string) error {
	tmp, err := os.CreateTemp("", "realmstore-restore-*"+extension)
	if err != nil {
		return snapshotError("failed to create temp file", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := s.store.Download(ctx, object, tmp.Name()); err != nil {
		return snapshotError("failed to download "+object, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return snapshotError("failed to create directory", err)
	}
	staged := dest + ".restore"
	if err := decompress(tmp.Name(), staged); err != nil {
		os.Remove(staged)
		return snapshotError("failed to decompress "+object, err)
	}
	for _, f := range tablestore.Files(dest)[1:] {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			os.Remove(staged)
			return snapshotError("failed to remove "+f, err)
		}
	}
	if err := os.Rename(staged, dest); err != nil {
		return snapshotError("failed to replace store", err)
	}

	s.logger.Info("restored snapshot", "object", object, "dest", dest)
	return nil
}

// Prune deletes all but the newest keep snapshots of the named store and
// returns how many were removed.
func (s *Snapshotter) Prune(ctx context.Context, store string, keep int) (int, error) {
	snaps, err := s.List(ctx, store)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	removed := 0
	for i := 0; i < len(snaps)-keep; i++ {
		if err := s.store.Delete(ctx, snaps[i].Object); err != nil {
			return removed, snapshotError("failed to delete "+snaps[i].Object, err)
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("pruned snapshots", "store", store, "removed", removed, "kept", len(snaps)-removed)
	}
	return removed, nil
}

func (s *Snapshotter) objectPath(snap *Snapshot) string {
	return path.Join(s.prefix, snap.Store, fmt.Sprintf("v%d-v%d-%s%s", snap.From, snap.To, snap.ID, extension))
}

// parseObject reads <...>/<store>/v<from>-v<to>-<id>.sz.
func parseObject(object string) (Snapshot, bool) {
	dir, file := path.Split(object)
	if !strings.HasSuffix(file, extension) {
		return Snapshot{}, false
	}
	parts := strings.SplitN(strings.TrimSuffix(file, extension), "-", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "v") || !strings.HasPrefix(parts[1], "v") {
		return Snapshot{}, false
	}
	from, err := strconv.ParseInt(parts[0][1:], 10, 64)
	if err != nil {
		return Snapshot{}, false
	}
	to, err := strconv.ParseInt(parts[1][1:], 10, 64)
	if err != nil {
		return Snapshot{}, false
	}
	if _, err := uuid.Parse(parts[2]); err != nil {
		return Snapshot{}, false
	}
	return Snapshot{
		ID:     parts[2],
		Store:  path.Base(strings.TrimSuffix(dir, "/")),
		From:   from,
		To:     to,
		Object: object,
	}, true
}

func compress(src string, dst io.Writer) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	w := snappy.NewBufferedWriter(dst)
	n, err := io.Copy(w, in)
	if err != nil {
		w.Close()
		return n, err
	}
	return n, w.Close()
}

func decompress(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, snappy.NewReader(in)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func snapshotError(message string, err error) error {
	return rerrors.NewStorageError(rerrors.CodeSnapshotFailed, "snapshot: "+message, err)
}
