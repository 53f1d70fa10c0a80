package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Dir is a filesystem-backed Store. Files land under one root directory and
// are addressed as baseURL/<key>.
type Dir struct {
	root    string
	baseURL string
}

// NewDir creates the root directory if needed and returns a Dir store.
func NewDir(root string, baseURL string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact dir: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact dir: %w", err)
	}
	return &Dir{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes the payload under a fresh key derived from the content type.
func (dir *Dir) Put(ctx context.Context, data []byte, contentType string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	key := uuid.NewString() + extensionFor(contentType)
	if err := os.WriteFile(filepath.Join(dir.root, key), data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("artifact put: %w", err)
	}
	return Artifact{Key: key, URL: dir.baseURL + "/" + key}, nil
}

// Get reads a previously stored payload back by key.
func (dir *Dir) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Keys are single path segments; anything else smells like traversal.
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	data, err := os.ReadFile(filepath.Join(dir.root, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("artifact get: %w", err)
	}
	return data, nil
}

// Root returns the backing directory, for static serving.
func (dir *Dir) Root() string {
	return dir.root
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ".bin"
	}
}
