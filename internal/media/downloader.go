// Package media shells out to yt-dlp to fetch videos from the
// supported social platforms into a scratch directory.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "wabot/pkg/logx"
)

// ErrUnsupportedURL is returned for links outside the supported
// platforms.
var ErrUnsupportedURL = errors.New("media: unsupported url")

type Config struct {
	// Dir is the scratch directory for downloaded files.
	Dir string
	// Binary is the downloader executable. Default "yt-dlp".
	Binary string
	// Timeout bounds a single download. Default 5m.
	Timeout time.Duration
	// KeepFor is how long Sweep retains files. Default 1h.
	KeepFor time.Duration
}

type Downloader struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Downloader {
	if cfg.Binary == "" {
		cfg.Binary = "yt-dlp"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.KeepFor <= 0 {
		cfg.KeepFor = time.Hour
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "wabot-media")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Downloader{cfg: cfg, log: log}
}

// DetectPlatform names the platform a link belongs to. Unknown hosts
// report ok=false.
func DetectPlatform(rawURL string) (platform string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch {
	case host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com"):
		return "youtube", true
	case host == "instagram.com" || strings.HasSuffix(host, ".instagram.com"):
		return "instagram", true
	case host == "tiktok.com" || strings.HasSuffix(host, ".tiktok.com"):
		return "tiktok", true
	case host == "twitter.com" || host == "x.com" || strings.HasSuffix(host, ".twitter.com"):
		return "twitter", true
	case host == "facebook.com" || host == "fb.watch" || strings.HasSuffix(host, ".facebook.com"):
		return "facebook", true
	}
	return "", false
}

// Download fetches rawURL into the scratch directory and returns the
// resulting file path.
func (d *Downloader) Download(ctx context.Context, rawURL string) (string, error) {
	platform, ok := DetectPlatform(rawURL)
	if !ok {
		return "", ErrUnsupportedURL
	}
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return "", err
	}

	id := uuid.NewString()
	// yt-dlp substitutes the real extension for %(ext)s, so the file
	// is located afterwards by the id prefix.
	tmpl := filepath.Join(d.cfg.Dir, id+".%(ext)s")

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, d.cfg.Binary,
		"--no-playlist",
		"--no-progress",
		"-f", "mp4/best",
		"-o", tmpl,
		rawURL,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		d.log.Warn("download failed",
			logx.String("platform", platform),
			logx.String("url", rawURL),
			logx.String("output", tail(string(out), 400)),
			logx.Err(err))
		return "", fmt.Errorf("media: %s download failed: %w", platform, err)
	}

	matches, err := filepath.Glob(filepath.Join(d.cfg.Dir, id+".*"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("media: downloaded file not found for %s", rawURL)
	}
	d.log.Info("download finished",
		logx.String("platform", platform),
		logx.String("path", matches[0]),
		logx.Duration("took", time.Since(start)))
	return matches[0], nil
}

// Fetch is the inbound-router entry point: download plus a cleanup
// closure that removes the file.
func (d *Downloader) Fetch(ctx context.Context, rawURL string) (string, func(), error) {
	path, err := d.Download(ctx, rawURL)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.log.Warn("scratch file not removed", logx.String("path", path), logx.Err(err))
		}
	}
	return path, cleanup, nil
}

// Sweep deletes scratch files older than KeepFor. Meant to run on a
// schedule; a missing directory is not an error.
func (d *Downloader) Sweep(ctx context.Context) error {
	entries, err := os.ReadDir(d.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-d.cfg.KeepFor)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(d.cfg.Dir, e.Name())); err == nil {
			removed++
		}
	}
	if removed > 0 {
		d.log.Debug("scratch sweep", logx.Int("removed", removed))
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
