package volatility

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
)

type Mode string

const (
	ModeLocal  Mode = "local"
	ModeDocker Mode = "docker"
)

const (
	childrenKey    = "__children"
	maxStderrBytes = 512
	killGrace      = 2 * time.Second
)

// Options configures how the Volatility binary is invoked.
type Options struct {
	Mode          Mode
	Binary        string // local mode: vol / vol.py path
	Docker        string // docker mode: docker CLI, default "docker"
	DockerImage   string
	ModuleTimeout time.Duration
}

// Runner runs the extraction battery as one subprocess per module.
type Runner struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

func NewRunner(opts Options, log zerolog.Logger) *Runner {
	if opts.Mode == "" {
		opts.Mode = ModeLocal
	}
	if opts.Binary == "" {
		opts.Binary = "vol"
	}
	if opts.Docker == "" {
		opts.Docker = "docker"
	}
	if opts.ModuleTimeout <= 0 {
		opts.ModuleTimeout = 300 * time.Second
	}
	return &Runner{opts: opts, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Run executes modules sequentially against imagePath. A failing module yields a
// failure marker and the battery continues. Once ctx is done no further module
// is started and those modules are absent from the result.
func (r *Runner) Run(ctx context.Context, imagePath string, modules []domain.Module) domain.ModuleResults {
	results := make(domain.ModuleResults, len(modules))
	for _, m := range modules {
		if ctx.Err() != nil {
			r.log.Warn().Err(ctx.Err()).Msg("extraction cancelled, skipping remaining modules")
			break
		}
		results[m.Name] = r.runModule(ctx, imagePath, m)
	}
	return results
}

func (r *Runner) runModule(ctx context.Context, imagePath string, m domain.Module) domain.ModuleResult {
	log := r.log.With().Str("module", m.Name).Logger()
	start := time.Now()

	mctx, cancel := context.WithTimeout(ctx, r.opts.ModuleTimeout)
	defer cancel()

	cmd := r.command(mctx, imagePath, m.Name)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = killGrace

	log.Debug().Strs("args", cmd.Args).Msg("running module")
	err := cmd.Run()

	switch {
	case errors.Is(mctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		reason := fmt.Sprintf("timeout after %s", r.opts.ModuleTimeout)
		log.Warn().Dur("elapsed", time.Since(start)).Msg(reason)
		return domain.FailedModule(m, reason, r.now())
	case ctx.Err() != nil:
		log.Warn().Err(ctx.Err()).Msg("module cancelled")
		return domain.FailedModule(m, "cancelled: "+ctx.Err().Error(), r.now())
	case err != nil:
		var ee *exec.ExitError
		reason := err.Error()
		if errors.As(err, &ee) {
			reason = fmt.Sprintf("exit status %d: %s", ee.ExitCode(), tail(stderr.String(), maxStderrBytes))
		}
		log.Warn().Str("reason", reason).Msg("module failed")
		return domain.FailedModule(m, reason, r.now())
	}

	records, err := ParseOutput(stdout.Bytes())
	if err != nil {
		log.Warn().Err(err).Msg("module produced unparsable output")
		return domain.FailedModule(m, err.Error(), r.now())
	}

	log.Info().Int("records", len(records)).Dur("elapsed", time.Since(start)).Msg("module complete")
	return domain.ModuleResult{
		Module:      m.Name,
		Description: m.Description,
		Records:     records,
		ProducedAt:  r.now(),
	}
}

func (r *Runner) command(ctx context.Context, imagePath, plugin string) *exec.Cmd {
	if r.opts.Mode == ModeDocker {
		// image dir mounted read-only, path rewritten inside the container
		return exec.CommandContext(ctx, r.opts.Docker, "run", "--rm",
			"-v", fmt.Sprintf("%s:/dump:ro", filepath.Dir(imagePath)),
			r.opts.DockerImage,
			"-q", "-r", "json",
			"-f", "/dump/"+filepath.Base(imagePath),
			plugin,
		)
	}
	return exec.CommandContext(ctx, r.opts.Binary, "-q", "-r", "json", "-f", imagePath, plugin)
}

// ParseOutput decodes Volatility's JSON renderer output. Tree plugins nest rows
// under "__children"; those are flattened depth-first after their parent.
// Empty output is a valid empty result.
func ParseOutput(out []byte) ([]domain.Record, error) {
	if len(bytes.TrimSpace(out)) == 0 {
		return []domain.Record{}, nil
	}
	var rows []domain.Record
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, fmt.Errorf("unparsable output: %w", err)
	}
	flat := make([]domain.Record, 0, len(rows))
	return flatten(flat, rows), nil
}

func flatten(dst, rows []domain.Record) []domain.Record {
	for _, row := range rows {
		children, _ := row[childrenKey].([]any)
		delete(row, childrenKey)
		dst = append(dst, row)
		if len(children) == 0 {
			continue
		}
		nested := make([]domain.Record, 0, len(children))
		for _, c := range children {
			if m, ok := c.(map[string]any); ok {
				nested = append(nested, m)
			}
		}
		dst = flatten(dst, nested)
	}
	return dst
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
