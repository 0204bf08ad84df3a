package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
)

// File permissions: login state is sensitive, owner-only.
const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// FileStore persists each namespace as one JSON file under a directory.
// Writes are atomic (temp file + rename) and guarded by a cross-process file
// lock; an fsnotify watcher invalidates the in-memory cache when another
// process rewrites a namespace (a concurrently running CLI refreshing the
// token, for instance).
type FileStore struct {
	dir     string
	logger  *slog.Logger
	lock    *flock.Flock
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	cache map[string]map[string]string
}

// NewFileStore opens a file store rooted at dir, creating it if needed.
// Call Close when done to release the directory watcher.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("store: creating directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("store: creating watcher: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("store: watching %s: %w", dir, err)
	}

	s := &FileStore{
		dir:     dir,
		logger:  logger,
		lock:    flock.New(filepath.Join(dir, ".lock")),
		watcher: watcher,
		cache:   make(map[string]map[string]string),
	}

	go s.watch()

	return s, nil
}

// Close stops the directory watcher.
func (s *FileStore) Close() error {
	return s.watcher.Close()
}

// Namespace returns the auth.TokenStore view over one namespace.
func (s *FileStore) Namespace(name string) auth.TokenStore {
	return &fileNamespace{store: s, name: name}
}

// watch invalidates cached namespaces rewritten by another process.
func (s *FileStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}

			name, found := strings.CutSuffix(filepath.Base(event.Name), ".json")
			if !found {
				continue
			}

			s.mu.Lock()
			delete(s.cache, name)
			s.mu.Unlock()

			s.logger.Debug("login state changed on disk, cache invalidated",
				slog.String("namespace", name),
			)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			s.logger.Warn("login state watcher error", slog.String("error", err.Error()))
		}
	}
}

func (s *FileStore) path(namespace string) string {
	return filepath.Join(s.dir, namespace+".json")
}

// load returns the namespace contents, from cache when fresh.
// Caller must hold s.mu.
func (s *FileStore) loadLocked(namespace string) (map[string]string, error) {
	if values, ok := s.cache[namespace]; ok {
		return values, nil
	}

	data, err := os.ReadFile(s.path(namespace))
	if errors.Is(err, fs.ErrNotExist) {
		values := make(map[string]string)
		s.cache[namespace] = values

		return values, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", s.path(namespace), err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("store: decoding %s: %w", s.path(namespace), err)
	}

	s.cache[namespace] = values

	return values, nil
}

// save writes the namespace atomically under the cross-process lock.
// Caller must hold s.mu.
func (s *FileStore) saveLocked(namespace string, values map[string]string) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("store: acquiring lock: %w", err)
	}
	defer s.lock.Unlock() //nolint:errcheck // release is best-effort

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encoding %s: %w", namespace, err)
	}

	// Temp file in the same directory guarantees same filesystem for
	// rename(2), keeping the replacement atomic.
	tmp, err := os.CreateTemp(s.dir, "."+namespace+"-*.tmp")
	if err != nil {
		return fmt.Errorf("store: creating temp file: %w", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("store: writing temp file: %w", err)
	}

	if err := tmp.Chmod(filePerms); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("store: setting permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("store: closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path(namespace)); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("store: replacing %s: %w", s.path(namespace), err)
	}

	s.cache[namespace] = values

	return nil
}

// fileNamespace is one namespace's view of a FileStore.
type fileNamespace struct {
	store *FileStore
	name  string
}

func (n *fileNamespace) Get(key string) (string, bool, error) {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	values, err := n.store.loadLocked(n.name)
	if err != nil {
		return "", false, err
	}

	v, ok := values[key]

	return v, ok, nil
}

func (n *fileNamespace) PutAll(updates map[string]string) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	current, err := n.store.loadLocked(n.name)
	if err != nil {
		return err
	}

	merged := make(map[string]string, len(current)+len(updates))
	for k, v := range current {
		merged[k] = v
	}

	for k, v := range updates {
		merged[k] = v
	}

	return n.store.saveLocked(n.name, merged)
}

func (n *fileNamespace) Clear() error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()

	if err := os.Remove(n.store.path(n.name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: clearing %s: %w", n.name, err)
	}

	delete(n.store.cache, n.name)

	return nil
}
