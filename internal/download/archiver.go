// Package download streams resolved download URLs into zip archives on local
// disk. Artifacts are written chunk by chunk so memory stays flat regardless
// of file size, and a failed transfer never leaves a partial archive behind.
package download

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

const (
	defaultChunkSize = 8192
	defaultTimeout   = 5 * time.Minute
)

// Config tunes the archiver.
type Config struct {
	// Dir is the directory archives are written into.
	Dir string
	// ChunkSize is the copy buffer size in bytes.
	ChunkSize int
	// Timeout bounds one whole transfer.
	Timeout time.Duration
}

// Archiver downloads artifacts over HTTP and wraps each one in a zip archive.
type Archiver struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates an Archiver. Zero config fields fall back to defaults.
func New(cfg Config, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Archiver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Fetch streams the artifact at rawURL into a fresh zip archive under the
// configured directory and returns its location and size. On any error no
// file remains on disk.
func (a *Archiver) Fetch(ctx context.Context, rawURL string) (crawler.Archive, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("build download request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return crawler.Archive{}, fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return crawler.Archive{}, fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
	}

	member := fileName(resp, rawURL)
	dest := a.uniquePath(member)

	bytes, err := a.writeArchive(dest, member, resp.Body)
	if err != nil {
		return crawler.Archive{}, err
	}

	a.logger.Info("archive written",
		zap.String("name", filepath.Base(dest)),
		zap.Int64("bytes", bytes))

	return crawler.Archive{
		Name:  filepath.Base(dest),
		Path:  dest,
		Bytes: bytes,
	}, nil
}

// writeArchive wraps body in a single-member zip at dest. Any failure removes
// the partially written file before returning.
func (a *Archiver) writeArchive(dest, member string, body io.Reader) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("create archive %s: %w", dest, err)
	}

	fail := func(step string, cause error) (int64, error) {
		f.Close()       //nolint:errcheck
		os.Remove(dest) //nolint:errcheck
		return 0, fmt.Errorf("%s %s: %w", step, dest, cause)
	}

	zw := zip.NewWriter(f)
	entry, err := zw.Create(member)
	if err != nil {
		return fail("create archive member in", err)
	}

	buf := make([]byte, a.cfg.ChunkSize)
	written, err := io.CopyBuffer(entry, body, buf)
	if err != nil {
		return fail("stream into archive", err)
	}
	if err := zw.Close(); err != nil {
		return fail("finalize archive", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest) //nolint:errcheck
		return 0, fmt.Errorf("close archive %s: %w", dest, err)
	}
	return written, nil
}

// uniquePath derives a .zip path for member that does not collide with an
// existing archive, appending "(N)" before the extension when needed.
func (a *Archiver) uniquePath(member string) string {
	base := strings.TrimSuffix(member, path.Ext(member))
	candidate := filepath.Join(a.cfg.Dir, base+".zip")
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(a.cfg.Dir, fmt.Sprintf("%s(%d).zip", base, n))
	}
}

// fileName picks the member name for the archived artifact, preferring the
// Content-Disposition header, then the URL path, then the content type.
func fileName(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return filepath.Base(name)
			}
		} else if idx := strings.Index(cd, "filename="); idx >= 0 {
			name := strings.Trim(cd[idx+len("filename="):], `"' `)
			if name != "" {
				return filepath.Base(name)
			}
		}
	}

	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		if tail := path.Base(u.Path); tail != "" && tail != "/" && tail != "." {
			name = tail
		}
	}
	if path.Ext(name) != "" {
		return name
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
				return name + exts[0]
			}
		}
	}
	return name
}
