// Package storage writes finished downloads to a local directory or an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/desertthunder/beatq/internal/shared"
)

// Sink stores a downloaded stream under key and returns where it ended up.
//
// size is the expected length in bytes, or -1 when unknown.
type Sink interface {
	Put(ctx context.Context, key string, r io.Reader, size int64) (string, error)
}

// NewSink builds the sink selected by cfg.Backend.
func NewSink(cfg shared.StorageConfig) (Sink, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewFileSink(cfg.Dir)
	case "minio", "s3":
		return NewMinioSink(cfg.Minio)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", shared.ErrInvalidConfig, cfg.Backend)
	}
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// Key builds a stable, filesystem-safe object key for a track: "<batch>/<NNN> - <artist> - <title><ext>".
func Key(batch string, position int, artist, title, ext string) string {
	name := fmt.Sprintf("%03d - %s - %s", position, clean(artist), clean(title))
	if artist == "" {
		name = fmt.Sprintf("%03d - %s", position, clean(title))
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(clean(batch), name+ext)
}

// ExtensionFor maps a response content type to a file extension, defaulting to ".audio".
func ExtensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".audio"
	}
	switch mediaType {
	case "audio/webm", "video/webm":
		return ".webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a", "video/mp4":
		return ".m4a"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/flac":
		return ".flac"
	}
	return ".audio"
}

func clean(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	s = strings.Trim(strings.TrimSpace(s), ".")
	if s == "" {
		return "untitled"
	}
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
