package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/duo/internal/errors"
	"github.com/Iron-Ham/duo/internal/session"
)

const (
	// sessionsDir is the directory under the store root holding one directory per session.
	sessionsDir = "sessions"

	versionPrefix = "v"
	versionSuffix = ".json"
	tempPrefix    = ".tmp-"

	// loadAttempts bounds retries when a version file is pruned between
	// listing the directory and reading it.
	loadAttempts = 10
)

// errVersionTaken reports that another writer already claimed a version file.
var errVersionTaken = errors.New("version already written")

// FileStore keeps each session in its own directory as a sequence of
// immutable version files:
//
//	<root>/sessions/<id>/v00000000000000000001.json
//	<root>/sessions/<id>/v00000000000000000002.json
//
// A write goes to a temp file which is fsynced and then hard-linked to the
// next version's name. link(2) fails with EEXIST if another process claimed
// that version first, so the version check and the write are a single
// atomic step. The newest file is the current state.
//
// Pruning never frees a version name: an old version is replaced by an
// empty tombstone under the same name, so a stale writer's link still
// fails with EEXIST.
type FileStore struct {
	root string
	opts options
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	o := applyOptions(opts)
	if o.keepVersions < 0 || o.keepVersions == 1 {
		return nil, errors.NewValidationError("keep_versions must be 0 or at least 2").
			WithField("keep_versions").
			WithValue(o.keepVersions)
	}

	root := filepath.Join(dir, sessionsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{root: root, opts: o}, nil
}

// Root returns the directory holding the session directories.
func (s *FileStore) Root() string {
	return s.root
}

// SessionDir returns the directory holding the session's version files.
func (s *FileStore) SessionDir(id string) string {
	return filepath.Join(s.root, id)
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, id, task string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sess, err := session.New(id, task, s.opts.now())
	if err != nil {
		return nil, err
	}
	sess.Version = 1

	dir := s.SessionDir(id)
	// Mkdir may race with another creator; the link below decides the winner.
	if err := os.Mkdir(dir, 0o755); err != nil && !os.IsExist(err) {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}
	if err := writeVersion(dir, 1, data); err != nil {
		if errors.Is(err, errVersionTaken) {
			return nil, alreadyExists(id)
		}
		return nil, errors.NewSessionError("write session", err).WithSessionID(id)
	}

	s.opts.logger.WithSession(id).Debug("session file created", "path", dir)
	return sess, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, id string) (*session.Session, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}

	dir := s.SessionDir(id)
	for attempt := 0; attempt < loadAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		versions, err := listVersions(dir)
		if err != nil {
			return nil, errors.NewSessionError("list versions", err).WithSessionID(id)
		}
		if len(versions) == 0 {
			return nil, notFound(id)
		}

		latest := versions[len(versions)-1]
		data, err := os.ReadFile(filepath.Join(dir, versionName(latest)))
		if err != nil {
			return nil, errors.NewSessionError("read session", err).WithSessionID(id)
		}
		if len(data) == 0 {
			// Tombstoned by a concurrent writer; a newer version exists.
			continue
		}

		sess, err := Decode(data)
		if err != nil {
			return nil, err
		}
		if sess.ID != id || sess.Version != latest {
			return nil, errors.NewSessionError(
				fmt.Sprintf("file %s holds session %q version %d", versionName(latest), sess.ID, sess.Version),
				errors.ErrSessionCorrupted,
			).WithSessionID(id)
		}
		return sess, nil
	}
	return nil, errors.NewSessionError(
		fmt.Sprintf("latest version kept being pruned after %d attempts", loadAttempts), nil,
	).WithSessionID(id)
}

// CompareAndSave implements Store.
func (s *FileStore) CompareAndSave(ctx context.Context, sess *session.Session) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkSave(sess); err != nil {
		return nil, err
	}

	id := sess.ID
	dir := s.SessionDir(id)
	versions, err := listVersions(dir)
	if err != nil {
		return nil, errors.NewSessionError("list versions", err).WithSessionID(id)
	}
	if len(versions) == 0 {
		return nil, notFound(id)
	}
	if latest := versions[len(versions)-1]; latest != sess.Version {
		return nil, errors.NewConflictError(id, sess.Version, latest)
	}

	next := nextVersion(sess, s.opts.now())
	data, err := Encode(next)
	if err != nil {
		return nil, err
	}
	if err := writeVersion(dir, next.Version, data); err != nil {
		if errors.Is(err, errVersionTaken) {
			return nil, errors.NewConflictError(id, sess.Version, s.latestVersion(dir))
		}
		return nil, errors.NewSessionError("write session", err).WithSessionID(id)
	}

	if s.opts.keepVersions > 0 {
		s.prune(id, dir)
	}

	return next, nil
}

// Exists implements Store.
func (s *FileStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if session.ValidateID(id) != nil {
		return false, nil
	}
	versions, err := listVersions(s.SessionDir(id))
	if err != nil {
		return false, errors.NewSessionError("list versions", err).WithSessionID(id)
	}
	return len(versions) > 0, nil
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		if !entry.IsDir() || session.ValidateID(entry.Name()) != nil {
			continue
		}
		sess, err := s.Load(ctx, entry.Name())
		if errors.Is(err, errors.ErrSessionNotFound) {
			// Directory left behind by a create that never linked v1.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, sess.Summary())
	}
	// ReadDir returns entries sorted by filename.
	return out, nil
}

// Close implements Store. The file store holds no open resources.
func (s *FileStore) Close() error {
	return nil
}

// Watch implements Notifier using fsnotify on the session directory. A
// signal is sent whenever a new version file appears.
func (s *FileStore) Watch(ctx context.Context, id string) (<-chan struct{}, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}
	dir := s.SessionDir(id)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	ch := make(chan struct{}, 1)
	logger := s.opts.logger.WithSession(id)
	go func() {
		defer close(ch)
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) {
					continue
				}
				if _, isVersion := parseVersionName(filepath.Base(ev.Name)); !isVersion {
					continue
				}
				if info, err := os.Stat(ev.Name); err != nil || info.Size() == 0 {
					// Tombstones replace old versions; nothing new to read.
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("session watcher error", "error", err)
			}
		}
	}()
	return ch, nil
}

func (s *FileStore) latestVersion(dir string) int64 {
	versions, err := listVersions(dir)
	if err != nil || len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}

// prune tombstones all but the newest keepVersions version files.
func (s *FileStore) prune(id, dir string) {
	versions, err := listVersions(dir)
	if err != nil || len(versions) <= s.opts.keepVersions {
		return
	}
	stale := versions[:len(versions)-s.opts.keepVersions]
	// Walk back from the newest stale version; everything below the first
	// tombstone was pruned by an earlier write.
	for i := len(stale) - 1; i >= 0; i-- {
		path := filepath.Join(dir, versionName(stale[i]))
		info, err := os.Stat(path)
		if err != nil {
			s.opts.logger.WithSession(id).Warn("failed to stat session version", "version", stale[i], "error", err)
			continue
		}
		if info.Size() == 0 {
			return
		}
		if err := tombstone(dir, path); err != nil {
			s.opts.logger.WithSession(id).Warn("failed to prune session version", "version", stale[i], "error", err)
		}
	}
}

// tombstone atomically replaces the file at path with an empty file.
func tombstone(dir, path string) error {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create tombstone: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close tombstone: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace version file: %w", err)
	}
	return nil
}

func versionName(v int64) string {
	return fmt.Sprintf("%s%020d%s", versionPrefix, v, versionSuffix)
}

func parseVersionName(name string) (int64, bool) {
	if !strings.HasPrefix(name, versionPrefix) || !strings.HasSuffix(name, versionSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, versionPrefix), versionSuffix)
	if len(digits) != 20 {
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || v < 1 {
		return 0, false
	}
	return v, true
}

// listVersions returns the version numbers present in dir in ascending
// order, tombstones included. A missing directory yields no versions.
func listVersions(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var versions []int64
	for _, entry := range entries {
		if v, ok := parseVersionName(entry.Name()); ok {
			versions = append(versions, v)
		}
	}
	slices.Sort(versions)
	return versions, nil
}

// writeVersion durably writes data as version v in dir. It returns
// errVersionTaken if the version file already exists.
func writeVersion(dir string, v int64, data []byte) error {
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Link(tmpPath, filepath.Join(dir, versionName(v))); err != nil {
		if os.IsExist(err) {
			return errVersionTaken
		}
		return fmt.Errorf("link version file: %w", err)
	}
	return syncDir(dir)
}

// syncDir makes a directory entry change durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
