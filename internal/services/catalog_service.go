package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/samurai-chat/internal/core"
	"github.com/markdave123-py/samurai-chat/internal/models"
)

// artifactNames are operating-system droppings hidden from name listings.
var artifactNames = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

// CatalogService stores a user's reference files on disk and records them in the catalog.
// Mutations for one user are serialized; different users proceed in parallel.
type CatalogService struct {
	db        core.DbClient
	dirs      *DirectoryBootstrapper
	maxProbes int
	logger    *slog.Logger
	now       func() time.Time
	locks     *keyedMutex
}

func NewCatalogService(db core.DbClient, dirs *DirectoryBootstrapper, maxProbes int, logger *slog.Logger) *CatalogService {
	if maxProbes < 1 {
		maxProbes = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		db:        db,
		dirs:      dirs,
		maxProbes: maxProbes,
		logger:    logger.With("component", "catalog"),
		now:       func() time.Time { return time.Now().UTC() },
		locks:     newKeyedMutex(),
	}
}

func (s *CatalogService) lockUser(userID string) func() {
	return s.locks.lock(userID)
}

// List returns the user's catalog in insertion order.
func (s *CatalogService) List(ctx context.Context, userID string) ([]models.UserDataFile, error) {
	return s.db.ListUserDataFiles(ctx, userID)
}

// ListNames returns catalog filenames without OS artifact files.
func (s *CatalogService) ListNames(ctx context.Context, userID string) ([]string, error) {
	files, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if isArtifact(f.Filename) {
			continue
		}
		names = append(names, f.Filename)
	}
	return names, nil
}

func isArtifact(name string) bool {
	return artifactNames[name] || strings.HasPrefix(name, "._")
}

// cleanName reduces an uploaded name to its last path element.
func cleanName(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	switch name {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: bad file name %q", core.ErrInvalidInput, filename)
	}
	return name, nil
}

// probeName returns the i-th candidate: name.ext, name_1.ext, name_2.ext, ...
// A dotfile such as ".env" has no extension and probes as ".env_1".
func probeName(name string, i int) string {
	if i == 0 {
		return name
	}
	ext := filepath.Ext(name)
	if ext == name {
		ext = ""
	}
	return strings.TrimSuffix(name, ext) + "_" + strconv.Itoa(i) + ext
}

// Store writes data under a collision-free name and records it. The file and the
// record succeed or fail together.
func (s *CatalogService) Store(ctx context.Context, userID, filename string, data io.Reader) (*models.UserDataFile, error) {
	name, err := cleanName(filename)
	if err != nil {
		return nil, err
	}

	unlock := s.lockUser(userID)
	defer unlock()

	dir, err := s.dirs.Dir(userID)
	if err != nil {
		return nil, err
	}

	f, finalName, err := s.reserve(ctx, userID, dir, name)
	if err != nil {
		return nil, err
	}
	path := f.Name()

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		s.discard(path)
		return nil, fmt.Errorf("%w: write file: %v", core.ErrStorage, err)
	}
	if err := f.Close(); err != nil {
		s.discard(path)
		return nil, fmt.Errorf("%w: close file: %v", core.ErrStorage, err)
	}

	rec := &models.UserDataFile{
		ID:         uuid.NewString(),
		UserID:     userID,
		Filename:   finalName,
		PathToFile: path,
		CreatedAt:  s.now(),
	}
	if err := s.db.CreateUserDataFile(ctx, rec); err != nil {
		s.discard(path)
		s.logger.Error("catalog insert failed, file removed", "user_id", userID, "filename", finalName, "error", err)
		return nil, fmt.Errorf("%w: record file: %v", core.ErrStorage, err)
	}

	s.logger.Info("user data stored", "user_id", userID, "filename", finalName)
	return rec, nil
}

// reserve creates the first free candidate exclusively, so a probe is also a claim.
// Names still held by a catalog record are skipped even if the file is gone.
func (s *CatalogService) reserve(ctx context.Context, userID, dir, name string) (*os.File, string, error) {
	for i := 0; i < s.maxProbes; i++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		candidate := probeName(name, i)
		path := filepath.Join(dir, candidate)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: create file: %v", core.ErrStorage, err)
		}

		_, err = s.db.GetUserDataFile(ctx, userID, candidate)
		if err == nil {
			_ = f.Close()
			s.discard(path)
			continue
		}
		if !errors.Is(err, core.ErrNotFound) {
			_ = f.Close()
			s.discard(path)
			return nil, "", err
		}
		return f, candidate, nil
	}

	s.logger.Warn("no free file name", "user_id", userID, "filename", name, "probes", s.maxProbes)
	return nil, "", fmt.Errorf("%w: %q after %d attempts", core.ErrNameSpaceExhausted, name, s.maxProbes)
}

func (s *CatalogService) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("cleanup failed", "error", err)
	}
}

// Remove deletes the file and its record. Whichever of the two exists is removed;
// ErrNotFound is returned only when neither does.
func (s *CatalogService) Remove(ctx context.Context, userID, filename string) error {
	name, err := cleanName(filename)
	if err != nil {
		return err
	}
	if name != filename {
		return fmt.Errorf("%w: bad file name %q", core.ErrInvalidInput, filename)
	}

	unlock := s.lockUser(userID)
	defer unlock()

	dir, err := s.dirs.Dir(userID)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, name)
	rec, err := s.db.GetUserDataFile(ctx, userID, name)
	switch {
	case err == nil:
		path = rec.PathToFile
	case !errors.Is(err, core.ErrNotFound):
		return err
	}

	fileRemoved := true
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove file: %v", core.ErrStorage, err)
		}
		fileRemoved = false
	}

	n, err := s.db.DeleteUserDataFile(ctx, userID, name)
	if err != nil {
		if fileRemoved {
			s.logger.Error("file removed but record delete failed", "user_id", userID, "filename", name, "error", err)
		}
		return err
	}
	recordRemoved := n > 0

	switch {
	case !fileRemoved && !recordRemoved:
		return fmt.Errorf("file %s: %w", name, core.ErrNotFound)
	case !fileRemoved:
		s.logger.Warn("catalog record had no file; record removed", "user_id", userID, "filename", name)
	case !recordRemoved:
		s.logger.Warn("file had no catalog record; file removed", "user_id", userID, "filename", name)
	default:
		s.logger.Info("user data removed", "user_id", userID, "filename", name)
	}
	return nil
}
