package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/textrun/internal/logger"
)

// ErrDownloadFailed wraps every failure to produce a local video file.
var ErrDownloadFailed = errors.New("download failed")

// videoExtensions are fetched directly over HTTP; anything else goes through yt-dlp.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".avi": true, ".m4v": true, ".ts": true,
}

// Config holds download settings.
type Config struct {
	WorkDir    string
	YtDlpPath  string
	Format     string
	Timeout    time.Duration
	HTTPClient *resty.Client
}

// Resolver turns a URL into a local video path.
type Resolver struct {
	workDir   string
	ytDlpPath string
	format    string
	client    *resty.Client
}

// NewResolver creates a resolver. Downloads are cached in WorkDir by source ID.
func NewResolver(cfg Config) *Resolver {
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "textrun")
	}
	ytDlp := cfg.YtDlpPath
	if ytDlp == "" {
		ytDlp = "yt-dlp"
	}
	format := cfg.Format
	if format == "" {
		format = "bestvideo[ext=mp4]"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = resty.New()
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Minute
		}
		client.SetTimeout(timeout)
	}
	return &Resolver{workDir: workDir, ytDlpPath: ytDlp, format: format, client: client}
}

// Resolve returns a local file for raw, downloading it when needed.
func (r *Resolver) Resolve(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	sourceID, err := SourceID(raw)
	if err != nil {
		return "", err
	}

	if strings.HasPrefix(sourceID, "file-") {
		p := strings.TrimPrefix(raw, "file://")
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
		}
		return filepath.Abs(p)
	}

	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir: %v", ErrDownloadFailed, err)
	}
	if cached, ok := r.cached(sourceID); ok {
		logger.CtxInfo(ctx, "Using cached download for %s: %s", sourceID, cached)
		return cached, nil
	}

	u, _ := url.Parse(raw)
	ext := strings.ToLower(path.Ext(u.Path))
	if videoExtensions[ext] && !IsYouTube(raw) {
		return r.fetchHTTP(ctx, raw, filepath.Join(r.workDir, sourceID+ext))
	}
	return r.fetchYtDlp(ctx, raw, sourceID)
}

func (r *Resolver) cached(sourceID string) (string, bool) {
	matches, err := filepath.Glob(filepath.Join(r.workDir, sourceID+".*"))
	if err != nil {
		return "", false
	}
	for _, m := range matches {
		if strings.HasSuffix(m, ".part") || strings.HasSuffix(m, ".tmp") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.Size() > 0 {
			return m, true
		}
	}
	return "", false
}

func (r *Resolver) fetchHTTP(ctx context.Context, raw, dest string) (string, error) {
	tmp := dest + ".tmp"
	start := time.Now()
	resp, err := r.client.R().
		SetContext(ctx).
		SetOutput(tmp).
		Get(raw)
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if resp.IsError() {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("%w: HTTP %d", ErrDownloadFailed, resp.StatusCode())
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	logger.With(logger.Fields{
		logger.FieldSize: resp.Size(),
	}).Since(start).Info(ctx, "Downloaded %s", raw)
	return dest, nil
}

func (r *Resolver) fetchYtDlp(ctx context.Context, raw, sourceID string) (string, error) {
	if _, err := exec.LookPath(r.ytDlpPath); err != nil {
		return "", fmt.Errorf("%w: %s not found: %v", ErrDownloadFailed, r.ytDlpPath, err)
	}

	start := time.Now()
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.ytDlpPath,
		"--no-playlist",
		"--no-progress",
		"-f", r.format,
		"-o", filepath.Join(r.workDir, sourceID+".%(ext)s"),
		raw,
	)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: yt-dlp: %v: %s", ErrDownloadFailed, err, strings.TrimSpace(stderr.String()))
	}

	dest, ok := r.cached(sourceID)
	if !ok {
		return "", fmt.Errorf("%w: yt-dlp produced no file for %s", ErrDownloadFailed, sourceID)
	}
	logger.With(logger.Fields{"format": r.format}).Since(start).Info(ctx, "Downloaded %s with yt-dlp: %s", raw, dest)
	return dest, nil
}
