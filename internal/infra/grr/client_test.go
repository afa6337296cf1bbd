package grr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

const resultsBody = `)]}'
{"items": [
  {"payload_type": "BufferReference", "payload": {"offset": "0"}},
  {"payload_type": "StatEntry", "payload": {
    "pathspec": {"path": "/tmp", "pathtype": "OS", "nested_path": {"path": "mem dump.raw", "pathtype": "OS"}},
    "st_size": "4096"
  }}
]}`

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL, Username: "admin", Password: "secret", Timeout: 5 * time.Second}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func requireBasicAuth(t *testing.T, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
}

func TestClient_ListResults(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireBasicAuth(t, r)
		assert.Equal(t, "/api/v2/clients/C.1234567890abcdef/flows/F1A2B3/results", r.URL.Path)
		_, _ = io.WriteString(w, resultsBody)
	}))

	results, err := c.ListResults(context.Background(), "C.1234567890abcdef", "F1A2B3")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BufferReference", results[0].PayloadType)
	assert.Empty(t, results[0].Path)

	stat := results[1]
	assert.Equal(t, domain.PayloadStatEntry, stat.PayloadType)
	assert.Equal(t, "fs/os/tmp/mem dump.raw", stat.Path)
	assert.Equal(t, "OS", stat.PathType)
	assert.Equal(t, int64(4096), stat.Size)
}

func TestClient_DownloadFile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requireBasicAuth(t, r)
		assert.Equal(t, "/api/v2/clients/C.1/vfs-blob/fs/os/tmp/mem%20dump.raw", r.URL.EscapedPath())
		_, _ = io.WriteString(w, "RAWMEMORY")
	}))

	body, err := c.DownloadFile(context.Background(), "C.1", domain.FlowResult{PayloadType: domain.PayloadStatEntry, Path: "fs/os/tmp/mem dump.raw"})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "RAWMEMORY", string(data))
}

func TestClient_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `)]}'{"message": "Flow not found"}`)
	}))

	_, err := c.ListResults(context.Background(), "C.1", "F1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Contains(t, err.Error(), "Flow not found")
}

func TestClient_CreateAndStartHunt(t *testing.T) {
	var created createHuntArgs
	var patched map[string]string

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: "tok123", Path: "/"})
	})
	mux.HandleFunc("/api/v2/hunts", func(w http.ResponseWriter, r *http.Request) {
		requireBasicAuth(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok123", r.Header.Get(csrfHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		_, _ = io.WriteString(w, `)]}'{"urn": "aff4:/hunts/H:ABC123", "name": "GenericHunt", "state": "PAUSED"}`)
	})
	mux.HandleFunc("/api/v2/hunts/H:ABC123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "tok123", r.Header.Get(csrfHeader))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&patched))
		_, _ = io.WriteString(w, `)]}'{}`)
	})
	c := newTestClient(t, mux)

	hunt, err := c.CreateHunt(context.Background(), domain.HuntRequest{
		Name:        "IOC_Hunt_cmd.exe_20261018",
		FlowName:    "ListProcesses",
		FlowArgs:    map[string]any{"filename_regex": `cmd\.exe`},
		Description: "Hunting for suspicious process: cmd.exe",
	})
	require.NoError(t, err)
	assert.Equal(t, "H:ABC123", hunt.ID)
	assert.Equal(t, "PAUSED", hunt.State)

	assert.Equal(t, "ListProcesses", created.FlowName)
	assert.Equal(t, `cmd\.exe`, created.FlowArgs["filename_regex"])
	assert.Equal(t, "IOC_Hunt_cmd.exe_20261018", created.HuntRunnerArgs.HuntName)
	assert.Equal(t, "Hunting for suspicious process: cmd.exe", created.HuntRunnerArgs.Description)

	require.NoError(t, c.StartHunt(context.Background(), hunt.ID))
	assert.Equal(t, map[string]string{"state": "STARTED"}, patched)
}

func TestClient_StartHuntError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			return
		}
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, "forbidden")
	}))

	err := c.StartHunt(context.Background(), "H:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestVFSPath(t *testing.T) {
	tests := []struct {
		ps   pathSpec
		want string
	}{
		{pathSpec{Path: "/tmp/mem.raw", PathType: "OS"}, "fs/os/tmp/mem.raw"},
		{pathSpec{Path: "C:/mem.raw", PathType: "TSK"}, "fs/tsk/C:/mem.raw"},
		{pathSpec{Path: "/x", PathType: "TMPFILE"}, "temp/x"},
		{pathSpec{Path: "\\\\.\\C:", PathType: "OS", NestedPath: &pathSpec{Path: "/Windows/mem.raw", PathType: "NTFS"}}, "fs/os/\\\\.\\C:/Windows/mem.raw"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vfsPath(tt.ps))
	}
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestClient_DownloadOutlivesAPITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 5; i++ {
			_, _ = io.WriteString(w, "CHUNK")
			w.(http.Flusher).Flush()
			time.Sleep(60 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL, Timeout: 100 * time.Millisecond, StallTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	body, err := c.DownloadFile(context.Background(), "C.1", domain.FlowResult{Path: "fs/os/tmp/mem.raw"})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "CHUNKCHUNKCHUNKCHUNKCHUNK", string(data))
}

func TestClient_DownloadStalled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "RAW")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{Endpoint: srv.URL, Timeout: 5 * time.Second, StallTimeout: 100 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	body, err := c.DownloadFile(context.Background(), "C.1", domain.FlowResult{Path: "fs/os/tmp/mem.raw"})
	require.NoError(t, err)
	defer body.Close()

	start := time.Now()
	_, err = io.ReadAll(body)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stalled")
	assert.Less(t, time.Since(start), 5*time.Second)
}
