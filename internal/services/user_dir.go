package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/markdave123-py/samurai-chat/internal/core"
)

// DirectoryBootstrapper hands out per-user storage directories under one root.
type DirectoryBootstrapper struct {
	root string
}

func NewDirectoryBootstrapper(root string) *DirectoryBootstrapper {
	return &DirectoryBootstrapper{root: root}
}

// Dir returns <root>/user_<id>, creating it when absent. Ids shorter than
// three characters are left-padded with zeros.
func (b *DirectoryBootstrapper) Dir(userID string) (string, error) {
	if b.root == "" {
		return "", fmt.Errorf("%w: user data root not set", core.ErrConfig)
	}
	if userID == "" || userID != filepath.Base(userID) || userID == "." || userID == ".." {
		return "", fmt.Errorf("%w: bad user id", core.ErrInvalidInput)
	}

	root, err := filepath.Abs(b.root)
	if err != nil {
		return "", fmt.Errorf("%w: resolve user data root: %v", core.ErrConfig, err)
	}

	dir := filepath.Join(root, "user_"+padID(userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create user dir: %v", core.ErrStorage, err)
	}
	return dir, nil
}

func padID(id string) string {
	for len(id) < 3 {
		id = "0" + id
	}
	return id
}
