package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/finparse-io/docinbox/internal/common"
)

// Local is a filesystem-backed Store. Keys are paths relative to the
// base directory, one subdirectory per user.
type Local struct {
	basePath string
}

func NewLocal(basePath string) (*Local, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Local{basePath: basePath}, nil
}

func (s *Local) Put(_ context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	userDir := filepath.Join(s.basePath, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", fmt.Errorf("create user directory: %w", err)
	}

	stored := fmt.Sprintf("%s_%s", uuid.NewString()[:8], sanitizeFilename(filename))
	if err := os.WriteFile(filepath.Join(userDir, stored), data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return filepath.Join(userID.String(), stored), nil
}

func (s *Local) GetBytes(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.NewAppErrorf(common.CodeNotFound, "no stored document at %q", key)
		}
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

func (s *Local) GetBase64(ctx context.Context, key string) (string, error) {
	data, err := s.GetBytes(ctx, key)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *Local) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// resolve rejects keys that would escape the base directory.
func (s *Local) resolve(key string) (string, error) {
	path := filepath.Join(s.basePath, filepath.FromSlash(key))
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if abs != base && !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return "", common.NewAppErrorf(common.CodeNotFound, "invalid storage key %q", key)
	}
	return abs, nil
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		"..", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)
	if name == "" {
		name = "document"
	}
	return name
}
