package grr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

const (
	apiPrefix           = "/api/v2"
	defaultTimeout      = 10 * time.Minute
	defaultStallTimeout = 2 * time.Minute
	// every JSON body from the GRR API starts with this anti-XSSI guard
	xssiPrefix = ")]}'"

	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"

	huntStateStarted = "STARTED"
)

// Config for the GRR HTTP API.
type Config struct {
	Endpoint string
	Username string
	Password string
	// Timeout bounds API calls, and only the response headers of a download.
	Timeout time.Duration
	// StallTimeout aborts a download that delivers no bytes for this long.
	StallTimeout time.Duration
	HTTP         *http.Client
}

// Client talks to the GRR admin UI's HTTP API using basic auth.
type Client struct {
	base     *url.URL
	username string
	password string
	http     *http.Client
	download *http.Client // no overall timeout, body bounded by stall
	stall    time.Duration
	log      zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("grr endpoint is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid grr endpoint: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	stall := cfg.StallTimeout
	if stall <= 0 {
		stall = defaultStallTimeout
	}

	hc := cfg.HTTP
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Timeout: timeout, Jar: jar}
	}
	dl := *hc
	dl.Timeout = 0
	if dl.Transport == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.ResponseHeaderTimeout = timeout
		dl.Transport = tr
	}

	return &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		http:     hc,
		download: &dl,
		stall:    stall,
		log:      log,
	}, nil
}

type pathSpec struct {
	Path       string    `json:"path"`
	PathType   string    `json:"pathtype"`
	NestedPath *pathSpec `json:"nested_path,omitempty"`
}

type statEntry struct {
	PathSpec pathSpec `json:"pathspec"`
	// proto int64 fields arrive as strings
	Size json.Number `json:"st_size"`
}

type resultItem struct {
	PayloadType string          `json:"payload_type"`
	Payload     json.RawMessage `json:"payload"`
}

// ListResults lists a flow's results. StatEntry results carry the VFS path of
// the collected file.
func (c *Client) ListResults(ctx context.Context, clientID, flowID string) ([]domain.FlowResult, error) {
	var body struct {
		Items []resultItem `json:"items"`
	}
	p := fmt.Sprintf("/clients/%s/flows/%s/results", url.PathEscape(clientID), url.PathEscape(flowID))
	if err := c.getJSON(ctx, p, &body); err != nil {
		return nil, err
	}

	out := make([]domain.FlowResult, 0, len(body.Items))
	for _, item := range body.Items {
		res := domain.FlowResult{PayloadType: item.PayloadType, Payload: item.Payload}
		if item.PayloadType == domain.PayloadStatEntry {
			var st statEntry
			if err := json.Unmarshal(item.Payload, &st); err != nil {
				return nil, fmt.Errorf("decode StatEntry: %w", err)
			}
			res.Path = vfsPath(st.PathSpec)
			res.PathType = st.PathSpec.PathType
			res.Size, _ = st.Size.Int64()
		}
		out = append(out, res)
	}

	c.log.Debug().Str("client_id", clientID).Str("flow_id", flowID).Int("results", len(out)).Msg("listed flow results")
	return out, nil
}

// DownloadFile streams the file's blob. The caller closes the reader.
// Images can be many GB, so there is no total deadline: the stream is
// aborted only when it stalls for longer than the stall timeout, or ctx ends.
func (c *Client) DownloadFile(ctx context.Context, clientID string, res domain.FlowResult) (io.ReadCloser, error) {
	if res.Path == "" {
		return nil, fmt.Errorf("%w: flow result has no file path", domain.ErrNotFound)
	}
	p := fmt.Sprintf("/clients/%s/vfs-blob/%s", url.PathEscape(clientID), escapePath(res.Path))

	dctx, cancel := context.WithCancel(ctx)
	resp, err := c.send(dctx, c.download, http.MethodGet, p, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	return newStallReader(resp.Body, c.stall, cancel), nil
}

// stallReader cancels the request when no bytes arrive within idle.
type stallReader struct {
	body    io.ReadCloser
	idle    time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func newStallReader(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *stallReader {
	r := &stallReader{body: body, idle: idle, cancel: cancel}
	r.timer = time.AfterFunc(idle, func() {
		r.stalled.Store(true)
		cancel()
	})
	return r
}

func (r *stallReader) Read(p []byte) (int, error) {
	n, err := r.body.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	if err != nil && err != io.EOF && r.stalled.Load() {
		err = fmt.Errorf("grr download stalled for %s: %w", r.idle, err)
	}
	return n, err
}

func (r *stallReader) Close() error {
	r.timer.Stop()
	r.cancel()
	return r.body.Close()
}

type huntRunnerArgs struct {
	HuntName    string `json:"hunt_name"`
	Description string `json:"description"`
}

type createHuntArgs struct {
	FlowName       string         `json:"flow_name"`
	FlowArgs       map[string]any `json:"flow_args"`
	HuntRunnerArgs huntRunnerArgs `json:"hunt_runner_args"`
}

type apiHunt struct {
	HuntID string `json:"hunt_id"`
	URN    string `json:"urn"`
	Name   string `json:"name"`
	State  string `json:"state"`
}

func (h apiHunt) id() string {
	if h.HuntID != "" {
		return h.HuntID
	}
	// older servers only return aff4:/hunts/H:123456
	return path.Base(h.URN)
}

// CreateHunt creates a hunt in PAUSED state.
func (c *Client) CreateHunt(ctx context.Context, req domain.HuntRequest) (domain.Hunt, error) {
	args := req.FlowArgs
	if args == nil {
		args = map[string]any{}
	}
	in := createHuntArgs{
		FlowName: req.FlowName,
		FlowArgs: args,
		HuntRunnerArgs: huntRunnerArgs{
			HuntName:    req.Name,
			Description: req.Description,
		},
	}
	var out apiHunt
	if err := c.sendJSON(ctx, http.MethodPost, "/hunts", in, &out); err != nil {
		return domain.Hunt{}, fmt.Errorf("create hunt %s: %w", req.Name, err)
	}
	name := out.Name
	if name == "" {
		name = req.Name
	}
	return domain.Hunt{ID: out.id(), Name: name, State: out.State}, nil
}

// StartHunt moves a hunt to STARTED.
func (c *Client) StartHunt(ctx context.Context, huntID string) error {
	in := map[string]string{"state": huntStateStarted}
	if err := c.sendJSON(ctx, http.MethodPatch, "/hunts/"+url.PathEscape(huntID), in, nil); err != nil {
		return fmt.Errorf("start hunt %s: %w", huntID, err)
	}
	return nil
}

// vfsPath maps a pathspec to the admin UI's virtual filesystem path.
func vfsPath(ps pathSpec) string {
	root := "fs/os"
	switch strings.ToUpper(ps.PathType) {
	case "TSK":
		root = "fs/tsk"
	case "NTFS":
		root = "fs/ntfs"
	case "REGISTRY":
		root = "registry"
	case "TMPFILE":
		root = "temp"
	}
	p := ps.Path
	for n := ps.NestedPath; n != nil; n = n.NestedPath {
		p = strings.TrimRight(p, "/") + "/" + strings.TrimLeft(n.Path, "/")
	}
	return root + "/" + strings.TrimLeft(p, "/")
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func (c *Client) getJSON(ctx context.Context, p string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decode(resp.Body, out)
}

func (c *Client) sendJSON(ctx context.Context, method, p string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal grr request: %w", err)
	}
	resp, err := c.do(ctx, method, p, payload)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return decode(resp.Body, out)
}

// do performs an authenticated API request and returns a 2xx response.
func (c *Client) do(ctx context.Context, method, p string, body []byte) (*http.Response, error) {
	return c.send(ctx, c.http, method, p, body)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, p string, body []byte) (*http.Response, error) {
	// p is already escaped
	target := c.base.String() + apiPrefix + p

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, fmt.Errorf("create grr request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		if token := c.csrfToken(ctx); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grr request failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() { _ = resp.Body.Close() }()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("grr %s %s: status %d: %s", method, p, resp.StatusCode,
			strings.TrimSpace(strings.TrimPrefix(string(msg), xssiPrefix)))
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
		}
		return nil, err
	}
	return resp, nil
}

// csrfToken returns the server's CSRF cookie, fetching it once via the UI root.
func (c *Client) csrfToken(ctx context.Context) string {
	if c.http.Jar == nil {
		return ""
	}
	if t := c.cookie(csrfCookie); t != "" {
		return t
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/", nil)
	if err != nil {
		return ""
	}
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to fetch grr csrf token")
		return ""
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return c.cookie(csrfCookie)
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func decode(r io.Reader, out any) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read grr response: %w", err)
	}
	raw = bytes.TrimPrefix(bytes.TrimSpace(raw), []byte(xssiPrefix))
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode grr response: %w", err)
	}
	return nil
}
