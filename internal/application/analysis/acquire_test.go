package analysis

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestAcquirer_Download(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := domain.NewMockBackend(ctrl)
	tmp := t.TempDir()
	a := &Acquirer{Backend: backend, TempDir: tmp, Log: zerolog.Nop()}

	stat := domain.FlowResult{PayloadType: domain.PayloadStatEntry, Path: "fs/os/C:/mem.raw"}
	backend.EXPECT().ListResults(gomock.Any(), "C.1", "F1").Return([]domain.FlowResult{stat}, nil)
	backend.EXPECT().DownloadFile(gomock.Any(), "C.1", stat).Return(io.NopCloser(strings.NewReader("0123456789")), nil)

	img, err := a.Download(context.Background(), "C.1", "F1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), img.Bytes)
	assert.Equal(t, "memory_C.1_F1.raw", filepath.Base(img.Path))

	data, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	info, err := os.Stat(img.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, img.Remove())
	assert.NoFileExists(t, img.Path)
	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquirer_NoImage(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := domain.NewMockBackend(ctrl)
	a := &Acquirer{Backend: backend, TempDir: t.TempDir(), Log: zerolog.Nop()}

	backend.EXPECT().ListResults(gomock.Any(), "C.1", "F1").Return(nil, nil)

	img, err := a.Download(context.Background(), "C.1", "F1")
	assert.Nil(t, img)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "no memory dump found in flow F1")
}

func TestAcquirer_BackendError(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := domain.NewMockBackend(ctrl)
	a := &Acquirer{Backend: backend, TempDir: t.TempDir(), Log: zerolog.Nop()}

	backend.EXPECT().ListResults(gomock.Any(), "C.1", "F1").Return(nil, errors.New("401 unauthorized"))

	_, err := a.Download(context.Background(), "C.1", "F1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401 unauthorized")
}

func TestAcquirer_PartialDownloadCleansUp(t *testing.T) {
	ctrl := gomock.NewController(t)
	backend := domain.NewMockBackend(ctrl)
	tmp := t.TempDir()
	a := &Acquirer{Backend: backend, TempDir: tmp, Log: zerolog.Nop()}

	stat := domain.FlowResult{PayloadType: domain.PayloadStatEntry, Path: "fs/os/mem.raw"}
	backend.EXPECT().ListResults(gomock.Any(), "C.1", "F1").Return([]domain.FlowResult{stat}, nil)
	backend.EXPECT().DownloadFile(gomock.Any(), "C.1", stat).Return(io.NopCloser(failingReader{}), nil)

	_, err := a.Download(context.Background(), "C.1", "F1")
	require.Error(t, err)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImage_RemoveNil(t *testing.T) {
	var img *Image
	assert.NoError(t, img.Remove())
}

func TestAcquirer_SweepStale(t *testing.T) {
	tmp := t.TempDir()
	stale := filepath.Join(tmp, "grr_memory_123")
	require.NoError(t, os.MkdirAll(stale, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(stale, "memory_C.1_F1.raw"), []byte("x"), 0o600))
	other := filepath.Join(tmp, "keep_me")
	require.NoError(t, os.MkdirAll(other, 0o700))

	a := &Acquirer{TempDir: tmp, Log: zerolog.Nop()}
	n, err := a.SweepStale()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(other)
	assert.NoError(t, err)
}
