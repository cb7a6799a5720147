package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

type fileRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // epoch milliseconds
}

// FileStore persists the credential pair as a JSON file, so sessions
// survive process restarts (CLI invocations in particular). Writes go
// through a temp file and rename so a crash mid-write cannot leave a
// half-written record; a record that fails to parse reads as absent.
type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	skew time.Duration
	now  func() time.Time
}

// NewFileStore returns a store writing to path on fs. A zero skew selects
// [DefaultSkewMargin].
func NewFileStore(fs afero.Fs, path string, skew time.Duration) *FileStore {
	return &FileStore{
		fs:   fs,
		path: path,
		skew: normalizeSkew(skew),
		now:  time.Now,
	}
}

// SetCredentials replaces the stored pair wholesale.
func (s *FileStore) SetCredentials(_ context.Context, access, refresh string, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(fileRecord{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    s.now().Add(lifetime).UnixMilli(),
	})
}

// UpdateAccessOnly stores a renewed access credential, preserving the
// refresh credential exactly.
func (s *FileStore) UpdateAccessOnly(_ context.Context, access string, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, _ := s.read()
	rec.AccessToken = access
	rec.ExpiresAt = s.now().Add(lifetime).UnixMilli()
	return s.write(rec)
}

// Credentials returns a copy of the stored pair.
func (s *FileStore) Credentials(_ context.Context) (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.read()
	if !ok {
		return Pair{}, false
	}
	pair := Pair{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    time.UnixMilli(rec.ExpiresAt),
	}
	if !pairComplete(pair) {
		return Pair{}, false
	}
	return pair, true
}

// AccessToken returns the access credential while unexpired.
func (s *FileStore) AccessToken(ctx context.Context) (string, bool) {
	pair, ok := s.Credentials(ctx)
	if pairExpired(pair, ok, s.now(), s.skew) {
		return "", false
	}
	return pair.AccessToken, true
}

// IsAccessExpired reports whether the access credential is past the skew
// boundary or absent.
func (s *FileStore) IsAccessExpired(ctx context.Context) bool {
	pair, ok := s.Credentials(ctx)
	return pairExpired(pair, ok, s.now(), s.skew)
}

// Clear removes the credential file. Idempotent.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FileStore) read() (fileRecord, bool) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fileRecord{}, false
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fileRecord{}, false
	}
	return rec, true
}

func (s *FileStore) write(rec fileRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
