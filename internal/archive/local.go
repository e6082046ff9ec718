package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Local archives feeds on the local filesystem under basePath. Every
// payload gets a sibling <key>.meta JSON file with its Metadata.
type Local struct {
	basePath string
}

// NewLocal creates a filesystem archive rooted at basePath. The directory
// is created on first write.
func NewLocal(basePath string) *Local {
	return &Local{basePath: basePath}
}

// SaveFeed writes the payload and its metadata sidecar, returning the key
// it was stored under.
func (l *Local) SaveFeed(ctx context.Context, feed FeedFile) (string, error) {
	now := time.Now().UTC()
	key := FeedKey(feed.ChainSlug, feed.Kind, now, path.Base(feed.Filename))

	fullPath := l.keyToPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}
	if err := os.WriteFile(fullPath, feed.Payload, 0o644); err != nil {
		return "", fmt.Errorf("write archive file %s: %w", key, err)
	}

	meta := Metadata{
		ChainSlug: feed.ChainSlug,
		Kind:      feed.Kind,
		SourceURL: feed.SourceURL,
		FetchedAt: now,
		Size:      int64(len(feed.Payload)),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal archive metadata: %w", err)
	}
	if err := os.WriteFile(fullPath+".meta", metaBytes, 0o644); err != nil {
		return "", fmt.Errorf("write archive metadata %s: %w", key, err)
	}
	return key, nil
}

// Get returns the archived payload for key.
func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	content, err := os.ReadFile(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("read archive file %s: %w", key, err)
	}
	return content, nil
}

// GetInfo returns size, checksum, and metadata for key without handing
// back the payload.
func (l *Local) GetInfo(ctx context.Context, key string) (*FileInfo, error) {
	fullPath := l.keyToPath(key)

	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("stat archive file %s: %w", key, err)
	}

	checksum, err := fileChecksum(fullPath)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		Key:        key,
		Size:       stat.Size(),
		Checksum:   checksum,
		ModifiedAt: stat.ModTime(),
	}
	if metaBytes, err := os.ReadFile(fullPath + ".meta"); err == nil {
		var meta Metadata
		if json.Unmarshal(metaBytes, &meta) == nil {
			info.Metadata = &meta
		}
	}
	return info, nil
}

// Exists reports whether key has an archived payload.
func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.keyToPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat archive file %s: %w", key, err)
	}
	return true, nil
}

// List returns every archived key starting with prefix, metadata sidecars
// excluded.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	err := filepath.WalkDir(l.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".meta") {
			return nil
		}
		key := l.pathToKey(p)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	return keys, nil
}

// keyToPath maps a key to a filesystem path, stripping anything that
// would escape the base directory.
func (l *Local) keyToPath(key string) string {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return filepath.Join(l.basePath, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
}

func (l *Local) pathToKey(p string) string {
	rel, err := filepath.Rel(l.basePath, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(rel)
}

func fileChecksum(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("checksum archive file: %w", err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}
