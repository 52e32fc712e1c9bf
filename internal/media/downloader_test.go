package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "wabot/pkg/logx"
)

func TestDetectPlatform(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url      string
		platform string
		ok       bool
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube", true},
		{"https://youtu.be/abc", "youtube", true},
		{"https://m.youtube.com/watch?v=abc", "youtube", true},
		{"https://www.instagram.com/reel/xyz/", "instagram", true},
		{"https://www.tiktok.com/@user/video/1", "tiktok", true},
		{"https://vm.tiktok.com/ZM1/", "tiktok", true},
		{"https://twitter.com/user/status/1", "twitter", true},
		{"https://x.com/user/status/1", "twitter", true},
		{"https://www.facebook.com/watch?v=1", "facebook", true},
		{"https://fb.watch/abc/", "facebook", true},
		{"https://example.com/video.mp4", "", false},
		{"https://notyoutube.com/watch", "", false},
		{"not a url", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		platform, ok := DetectPlatform(tc.url)
		if platform != tc.platform || ok != tc.ok {
			t.Fatalf("DetectPlatform(%q) = %q, %v; want %q, %v", tc.url, platform, ok, tc.platform, tc.ok)
		}
	}
}

func TestDownloadRejectsUnsupportedURL(t *testing.T) {
	t.Parallel()
	d := New(Config{Dir: t.TempDir()}, logx.Nop())
	if _, err := d.Download(context.Background(), "https://example.com/x"); !errors.Is(err, ErrUnsupportedURL) {
		t.Fatalf("got %v, want ErrUnsupportedURL", err)
	}
}

func TestDownloadSurfacesBinaryFailure(t *testing.T) {
	t.Parallel()
	d := New(Config{Dir: t.TempDir(), Binary: "/nonexistent/yt-dlp", Timeout: 5 * time.Second}, logx.Nop())
	if _, err := d.Download(context.Background(), "https://youtu.be/abc"); err == nil {
		t.Fatalf("expected error for missing binary")
	}
}

func TestSweepRemovesOnlyOldFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	d := New(Config{Dir: dir, KeepFor: time.Hour}, logx.Nop())

	old := filepath.Join(dir, "old.mp4")
	fresh := filepath.Join(dir, "fresh.mp4")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := d.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("old file survived sweep")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file removed: %v", err)
	}
}

func TestSweepMissingDirIsNoop(t *testing.T) {
	t.Parallel()
	d := New(Config{Dir: filepath.Join(t.TempDir(), "never-created")}, logx.Nop())
	if err := d.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep on missing dir: %v", err)
	}
}
