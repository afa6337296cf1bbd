package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

// Image is a memory image materialised in a private temp directory.
type Image struct {
	Path  string
	Bytes int64
	dir   string
}

// Remove deletes the image and its private directory.
func (i *Image) Remove() error {
	if i == nil || i.dir == "" {
		return nil
	}
	return os.RemoveAll(i.dir)
}

const dumpDirPrefix = "grr_memory_"

// Acquirer downloads completed memory images from the acquisition backend.
// It never retries; the caller decides.
type Acquirer struct {
	Backend domain.Backend
	TempDir string
	Log     zerolog.Logger
}

// Download materialises the first image-bearing result of the flow.
// Returns ErrNotFound when the flow has none.
func (a *Acquirer) Download(ctx context.Context, clientID, flowID string) (*Image, error) {
	results, err := a.Backend.ListResults(ctx, clientID, flowID)
	if err != nil {
		return nil, fmt.Errorf("list results for flow %s: %w", flowID, err)
	}

	for _, res := range results {
		if res.PayloadType != domain.PayloadStatEntry {
			continue
		}
		return a.fetch(ctx, clientID, flowID, res)
	}
	return nil, fmt.Errorf("%w: no memory dump found in flow %s", domain.ErrNotFound, flowID)
}

func (a *Acquirer) fetch(ctx context.Context, clientID, flowID string, res domain.FlowResult) (img *Image, err error) {
	dir, err := os.MkdirTemp(a.TempDir, dumpDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("create dump dir: %w", err)
	}
	// hapus dir kalau gagal di tengah jalan
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	body, err := a.Backend.DownloadFile(ctx, clientID, res)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", res.Path, err)
	}
	defer body.Close()

	path := filepath.Join(dir, fmt.Sprintf("memory_%s_%s.raw", clientID, flowID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write dump file: %w", err)
	}

	a.Log.Info().Str("path", path).Int64("bytes", n).Msg("downloaded memory dump")
	return &Image{Path: path, Bytes: n, dir: dir}, nil
}

// SweepStale removes dump directories left behind by a previous process that
// exited mid-job. Call it before the worker starts.
func (a *Acquirer) SweepStale() (int, error) {
	root := a.TempDir
	if root == "" {
		root = os.TempDir()
	}
	dirs, err := filepath.Glob(filepath.Join(root, dumpDirPrefix+"*"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, dir := range dirs {
		if err := os.RemoveAll(dir); err != nil {
			a.Log.Warn().Err(err).Str("dir", dir).Msg("failed to remove stale memory dump")
			continue
		}
		removed++
	}
	return removed, nil
}
