package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/brieflab/internal/domain"
)

const (
	conversationExt = ".json"
	tempSuffix      = ".tmp"
	corruptMarker   = ".corrupted."
	backendFile     = "file"
)

// errCorrupt marks persisted data that could not be decoded into briefs.
var errCorrupt = errors.New("corrupt conversation data")

// FileStore implements ConversationStore with one JSON array per
// conversation, replaced atomically on every append.
type FileStore struct {
	root   string
	locks  *KeyedMutex
	logger *slog.Logger
	now    func() time.Time

	// beforeReplace runs after the temp file is durable and before it is
	// renamed over the canonical file. A non-nil error aborts the append.
	beforeReplace func(tmpPath string) error
}

// NewFileStore creates a file-backed conversation store rooted at dir.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return nil, fmt.Errorf("file store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileStore{
		root:   dir,
		locks:  NewKeyedMutex(),
		logger: logger,
		now:    time.Now,
	}, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) path(key domain.ConversationKey) string {
	return filepath.Join(s.root, key.Owner, key.ID+conversationExt)
}

// Ping checks that the root directory is still present.
func (s *FileStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat store directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store path %s is not a directory", s.root)
	}
	return nil
}

// Get returns the briefs of a conversation. Reads take no lock because the
// canonical file is only ever replaced whole; the lock is taken only when
// corrupt data has to be moved aside.
func (s *FileStore) Get(ctx context.Context, key domain.ConversationKey) ([]domain.Brief, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path(key)
	briefs, err := readBriefs(path)
	if err == nil {
		return briefs, nil
	}
	if !errors.Is(err, errCorrupt) {
		return nil, err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	// An append may have replaced the file since the unlocked read.
	briefs, err = s.loadLocked(key, path)
	if err != nil {
		s.logger.Error("Failed to archive corrupt conversation", "conversation_id", key.ID, "owner", key.Owner, "error", err)
		return []domain.Brief{}, nil
	}
	return briefs, nil
}

// Append runs the read-modify-replace cycle under the conversation's lock.
func (s *FileStore) Append(ctx context.Context, key domain.ConversationKey, brief domain.Brief) (err error) {
	defer func() { recordAppend(backendFile, err) }()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := brief.Validate(); err != nil {
		return fmt.Errorf("append brief: %w", err)
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.path(key)
	briefs, err := s.loadLocked(key, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	briefs = append(briefs, brief.Clone())
	if err := s.writeAtomic(path, briefs); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	s.logger.Info("Appended brief to conversation", "conversation_id", key.ID, "owner", key.Owner, "brief_count", len(briefs))
	return nil
}

// Clear deletes the canonical file of a conversation.
func (s *FileStore) Clear(_ context.Context, key domain.ConversationKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	unlock := s.locks.Lock(key.String())
	defer unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear conversation: %w", err)
	}
	s.logger.Info("Cleared conversation", "conversation_id", key.ID, "owner", key.Owner)
	return nil
}

// List returns the conversation ids stored for owner. Temp files and
// corrupt archives are not conversations and are skipped.
func (s *FileStore) List(_ context.Context, owner string) ([]string, error) {
	if owner == "" {
		owner = domain.DefaultOwner
	}
	if !domain.ValidConversationID(owner) {
		return nil, domain.ErrInvalidConversationID
	}

	entries, err := os.ReadDir(filepath.Join(s.root, owner))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, conversationExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, conversationExt))
	}
	return ids, nil
}

// SweepTemp removes temporary files older than maxAge. They only exist when
// a process died between writing and replacing a conversation.
func (s *FileStore) SweepTemp(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !isTempName(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove orphaned temp file", "path", path, "error", err)
			return nil
		}
		removed++
		TempFilesSwept.Inc()
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep temp files: %w", err)
	}
	return removed, nil
}

// loadLocked reads the conversation and archives it if corrupt.
// Callers must hold the conversation's lock.
func (s *FileStore) loadLocked(key domain.ConversationKey, path string) ([]domain.Brief, error) {
	briefs, err := readBriefs(path)
	if err == nil {
		return briefs, nil
	}
	if !errors.Is(err, errCorrupt) {
		return nil, err
	}

	s.logger.Error("Corrupt conversation data", "conversation_id", key.ID, "owner", key.Owner, "path", path, "error", err)
	if archiveErr := s.archiveCorrupt(path); archiveErr != nil {
		return nil, archiveErr
	}
	return []domain.Brief{}, nil
}

func (s *FileStore) archiveCorrupt(path string) error {
	dst := fmt.Sprintf("%s%s%d", path, corruptMarker, s.now().UnixNano())
	if err := os.Rename(path, dst); err != nil {
		return fmt.Errorf("archive corrupt conversation: %w", err)
	}
	CorruptArchived.WithLabelValues(backendFile).Inc()
	s.logger.Warn("Corrupt conversation archived", "path", path, "archive", dst)
	return nil
}

func (s *FileStore) writeAtomic(path string, briefs []domain.Brief) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create conversation directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	closed := false

	defer func() {
		if err == nil {
			return
		}
		if !closed {
			_ = tmp.Close()
		}
		if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.logger.Warn("Failed to remove temp file", "path", tmpPath, "error", rmErr)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(briefs); err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if s.beforeReplace != nil {
		if err := s.beforeReplace(tmpPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace conversation file: %w", err)
	}
	syncDir(dir, s.logger)
	return nil
}

func syncDir(dir string, logger *slog.Logger) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		logger.Debug("Directory sync failed", "dir", dir, "error", err)
	}
}

// readBriefs loads a conversation file. A missing or blank file is an empty
// conversation. A path that cannot be read, or does not decode into valid
// briefs, is errCorrupt so callers move it aside instead of failing forever.
func readBriefs(path string) ([]domain.Brief, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Brief{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read conversation: %v", errCorrupt, err)
	}
	return decodeBriefs(data)
}

func decodeBriefs(data []byte) ([]domain.Brief, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []domain.Brief{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}

	briefs := make([]domain.Brief, 0, len(raw))
	for i, item := range raw {
		b, err := decodeBrief(item)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", errCorrupt, i, err)
		}
		briefs = append(briefs, b)
	}
	return briefs, nil
}

func decodeBrief(data []byte) (domain.Brief, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var b domain.Brief
	if err := dec.Decode(&b); err != nil {
		return domain.Brief{}, err
	}
	if err := b.Validate(); err != nil {
		return domain.Brief{}, err
	}
	return b.Clone(), nil
}

func isTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, tempSuffix)
}

func validateKey(key domain.ConversationKey) error {
	if !domain.ValidConversationID(key.ID) || !domain.ValidConversationID(key.Owner) {
		return domain.ErrInvalidConversationID
	}
	return nil
}
