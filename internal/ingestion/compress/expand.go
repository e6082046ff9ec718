// Package compress expands the compressed payloads the chain portals
// serve. Shufersal hands out gzip; some Victory feeds arrive as zip
// archives holding a single XML document. Plain payloads pass through
// untouched.
package compress

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// maxExpandedSize caps a decompressed payload. A full price file expands
// to tens of megabytes of XML; anything past this is treated as hostile.
var maxExpandedSize int64 = 256 << 20

// IsGzip reports whether data starts with the gzip magic bytes.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1F && data[1] == 0x8B
}

// IsZip reports whether data starts with the zip local-file signature.
func IsZip(data []byte) bool {
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04
}

// Expand decompresses data when it carries a gzip or zip signature and
// returns it unchanged otherwise. A zip archive must hold exactly one
// file; the portals never bundle more than one document per feed.
func Expand(data []byte) ([]byte, error) {
	switch {
	case IsGzip(data):
		return expandGzip(data)
	case IsZip(data):
		return expandZip(data)
	default:
		return data, nil
	}
}

func expandGzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()
	return readCapped(zr, "gzip payload")
}

func expandZip(data []byte) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}

	var entry *zip.File
	count := 0
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || isJunkEntry(f.Name) {
			continue
		}
		count++
		entry = f
	}
	if count == 0 {
		return nil, fmt.Errorf("zip archive holds no files")
	}
	if count > 1 {
		return nil, fmt.Errorf("zip archive holds %d files, want exactly one", count)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()
	return readCapped(rc, entry.Name)
}

// readCapped reads everything with one byte of headroom so an oversized
// payload is detected rather than truncated silently.
func readCapped(r io.Reader, what string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxExpandedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	if int64(len(out)) > maxExpandedSize {
		return nil, fmt.Errorf("%s expands past %d bytes", what, maxExpandedSize)
	}
	return out, nil
}

// isJunkEntry filters archive noise so a feed zipped on a desktop still
// reads as a single-document archive.
func isJunkEntry(name string) bool {
	return strings.Contains(name, "__MACOSX") ||
		strings.HasSuffix(name, ".DS_Store") ||
		strings.HasSuffix(name, "Thumbs.db")
}
