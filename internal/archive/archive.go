// Package archive keeps copies of raw transparency feeds so a bad parse
// can be inspected and replayed after the fact.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key has nothing archived under it.
var ErrNotFound = errors.New("not in archive")

// Metadata is the sidecar record written next to every archived payload.
type Metadata struct {
	ChainSlug string    `json:"chainSlug"`
	Kind      string    `json:"kind"`
	SourceURL string    `json:"sourceUrl,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Size      int64     `json:"size"`
}

// FileInfo describes an archived payload without its content.
type FileInfo struct {
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Checksum   string    `json:"checksum"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// FeedFile is one raw feed payload on its way into the archive. Payload is
// the decompressed XML as handed to the parser, not the gzip the portal
// served.
type FeedFile struct {
	ChainSlug string
	Kind      string
	Filename  string
	SourceURL string
	Payload   []byte
}

// Store archives raw feed payloads. Local disk today; the interface leaves
// room for object storage.
type Store interface {
	SaveFeed(ctx context.Context, feed FeedFile) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	GetInfo(ctx context.Context, key string) (*FileInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// FeedKey builds the archive key for a payload:
// feeds/<chain>/<yyyy-mm-dd>/<kind>/<filename>.
func FeedKey(chainSlug, kind string, fetchedAt time.Time, filename string) string {
	return fmt.Sprintf("feeds/%s/%s/%s/%s", chainSlug, fetchedAt.Format("2006-01-02"), kind, filename)
}
