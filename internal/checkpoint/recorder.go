// internal/checkpoint/recorder.go
package checkpoint

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/docketpilot/internal/browser/dom"
)

// Recorder captures labeled diagnostic snapshots. Capture is best-effort and must
// never fail the caller.
type Recorder interface {
	Capture(ctx context.Context, label string)
	// Ref identifies where this recorder's artifacts can be found.
	Ref() string
}

// Nop discards every capture.
type Nop struct{}

func (Nop) Capture(context.Context, string) {}
func (Nop) Ref() string                     { return "" }

// Snapshotter is the part of a page a recorder needs.
type Snapshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
	Source(ctx context.Context) (string, error)
}

const (
	manifestName          = "manifest.jsonl"
	timestampLayout       = "20060102_150405"
	defaultCaptureTimeout = 5 * time.Second
)

// Options configures a FileRecorder.
type Options struct {
	CaptureTimeout time.Duration
	// DumpPageSource writes a redacted copy of the page source for error labels.
	DumpPageSource bool
}

// Entry is one manifest line.
type Entry struct {
	Label      string    `json:"label"`
	Kind       string    `json:"kind"`
	Screenshot string    `json:"screenshot,omitempty"`
	PageSource string    `json:"page_source,omitempty"`
	Error      string    `json:"error,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// FileRecorder writes screenshots, page-source dumps and a JSON-lines manifest into
// a per-session directory.
type FileRecorder struct {
	dir    string
	snap   Snapshotter
	clock  dom.Clock
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
}

// NewFileRecorder prepares <root>/<sessionID> for artifacts. root may start with "~".
func NewFileRecorder(root, sessionID string, snap Snapshotter, clock dom.Clock, opts Options, logger *zap.Logger) (*FileRecorder, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, fmt.Errorf("failed to expand checkpoint directory '%s': %w", root, err)
	}
	dir := filepath.Join(expanded, sanitizeLabel(sessionID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory '%s': %w", dir, err)
	}
	if clock == nil {
		clock = dom.RealClock{}
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = defaultCaptureTimeout
	}
	return &FileRecorder{
		dir:    dir,
		snap:   snap,
		clock:  clock,
		opts:   opts,
		logger: logger.Named("checkpoint").With(zap.String("dir", dir)),
	}, nil
}

// Ref returns the session's artifact directory.
func (r *FileRecorder) Ref() string { return r.dir }

// Entries returns the captures made so far.
func (r *FileRecorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Capture takes a screenshot named after label. Error labels also get a redacted
// page-source dump. Failures are logged and swallowed.
func (r *FileRecorder) Capture(ctx context.Context, label string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Recovered from panic during checkpoint capture.", zap.String("label", label), zap.Any("panic", p))
		}
	}()

	label = sanitizeLabel(label)
	kind := Classify(label)
	now := r.clock.Now()
	stamp := now.Format(timestampLayout)
	entry := Entry{Label: label, Kind: kind, CapturedAt: now.UTC()}

	capCtx, cancel := context.WithTimeout(ctx, r.opts.CaptureTimeout)
	defer cancel()

	var errs []string
	if png, err := r.snap.Screenshot(capCtx); err != nil {
		errs = append(errs, "screenshot: "+err.Error())
	} else {
		name := label + "_" + stamp + ".png"
		if kind != KindStep {
			name = kind + "_" + name
		}
		if path, err := r.write(name, png); err != nil {
			errs = append(errs, err.Error())
		} else {
			entry.Screenshot = path
		}
	}

	if kind == KindError && r.opts.DumpPageSource {
		if path, err := r.dumpSource(capCtx, label, stamp); err != nil {
			errs = append(errs, "page source: "+err.Error())
		} else {
			entry.PageSource = path
		}
	}

	entry.Error = strings.Join(errs, "; ")
	if entry.Error != "" {
		r.logger.Warn("Checkpoint capture incomplete.", zap.String("label", label), zap.String("error", entry.Error))
	} else {
		r.logger.Debug("Checkpoint captured.", zap.String("label", label), zap.String("screenshot", entry.Screenshot))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	if err := r.appendManifest(entry); err != nil {
		r.logger.Warn("Failed to append checkpoint manifest.", zap.Error(err))
	}
}

func (r *FileRecorder) dumpSource(ctx context.Context, label, stamp string) (string, error) {
	src, err := r.snap.Source(ctx)
	if err != nil {
		return "", err
	}
	redacted, err := RedactPageSource(src)
	if err != nil {
		r.logger.Debug("Page source could not be parsed for redaction, skipping dump.", zap.Error(err))
		return "", err
	}
	return r.write(label+"_"+stamp+".html", []byte(redacted))
}

// write stores data under name, adding a numeric suffix if the name is taken.
func (r *FileRecorder) write(name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	path := filepath.Join(r.dir, name)
	for i := 2; ; i++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		path = filepath.Join(r.dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (r *FileRecorder) appendManifest(e Entry) error {
	f, err := os.OpenFile(filepath.Join(r.dir, manifestName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return err
	}
	return w.Flush()
}

// Capture kinds, also used as file name prefixes.
const (
	KindStep    = "step"
	KindSuccess = "success"
	KindError   = "error"
)

// Classify derives the capture kind from a label.
func Classify(label string) string {
	switch {
	case strings.HasSuffix(label, "_not_found"), strings.HasSuffix(label, "_error"):
		return KindError
	case strings.HasPrefix(label, "after_"), strings.HasPrefix(label, "success"):
		return KindSuccess
	default:
		return KindStep
	}
}

var unsafeLabelChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

func sanitizeLabel(label string) string {
	label = unsafeLabelChars.ReplaceAllString(strings.TrimSpace(label), "_")
	label = strings.Trim(label, "_")
	if label == "" {
		return "unlabeled"
	}
	return label
}
