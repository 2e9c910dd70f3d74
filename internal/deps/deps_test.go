package deps

import (
	"os"
	"path/filepath"
	"testing"

	"tempo/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unset", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unset command: %q", results[2].Detail)
	}
}

func TestResolveBinaryFallsBackToPath(t *testing.T) {
	binDir := t.TempDir()
	stub := filepath.Join(binDir, "tempo-test-tool")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	t.Setenv("PATH", binDir)

	resolved, err := ResolveBinary("tempo-test-tool")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved != stub {
		t.Fatalf("expected %q, got %q", stub, resolved)
	}
}

func TestSidecarRequiresExecutable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, ok := sidecarIn(dir, "ffmpeg"); ok {
		t.Fatal("non-executable file treated as sidecar")
	}
	if err := os.Chmod(filepath.Join(dir, "ffmpeg"), 0o755); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if got, ok := sidecarIn(dir, "ffmpeg"); !ok || got != filepath.Join(dir, "ffmpeg") {
		t.Fatalf("expected sidecar, got %q %v", got, ok)
	}
}

func TestRequirementsFollowConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Encoder.FFmpegBinary = "/opt/ffmpeg"
	reqs := Requirements(&cfg)
	if len(reqs) != 2 || reqs[0].Command != "/opt/ffmpeg" {
		t.Fatalf("unexpected requirements: %#v", reqs)
	}
	if reqs[0].Optional || !reqs[1].Optional {
		t.Fatalf("ffmpeg must be required and ffprobe optional: %#v", reqs)
	}
}
