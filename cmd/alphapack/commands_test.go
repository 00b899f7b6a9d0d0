package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"alphapack/internal/fileutil"
	"alphapack/internal/jobs"
	"alphapack/internal/speedremap"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse an existing file")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	// The shipped sample must itself load.
	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("validate sample: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[carrier]\nbogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, path); err == nil {
		t.Fatal("expected unknown key to fail")
	}
}

func TestRemapEditing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remap.toml")

	out, _, err := runCLI(t, []string{"remap", "init", path, "--frames", "100", "--fps", "25"}, "")
	if err != nil {
		t.Fatalf("remap init: %v", err)
	}
	requireContains(t, out, "identity remap for 100 frames")

	if _, _, err := runCLI(t, []string{"remap", "add", path, "0.5", "20"}, ""); err != nil {
		t.Fatalf("remap add: %v", err)
	}
	if _, _, err := runCLI(t, []string{"remap", "add", path, "0.5", "30"}, ""); err == nil {
		t.Fatal("expected duplicate position to fail")
	}
	if _, _, err := runCLI(t, []string{"remap", "delete", path, "0"}, ""); err == nil {
		t.Fatal("expected endpoint delete to fail")
	}
	if _, _, err := runCLI(t, []string{"remap", "set", path, "1", "40"}, ""); err != nil {
		t.Fatalf("remap set: %v", err)
	}

	out, _, err = runCLI(t, []string{"remap", "show", path}, "")
	if err != nil {
		t.Fatalf("remap show: %v", err)
	}
	requireContains(t, out, "0.5000")
	requireContains(t, out, "40")
	requireContains(t, out, "endpoint")
	requireContains(t, out, "Source: 100 frames at 25 fps")

	table, err := speedremap.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if table.Len() != 3 || table.Keyframes()[1].SourceFrame != 40 {
		t.Fatalf("unexpected saved keyframes %+v", table.Keyframes())
	}

	if _, _, err := runCLI(t, []string{"remap", "reset", path}, ""); err != nil {
		t.Fatalf("remap reset: %v", err)
	}
	table, err = speedremap.Load(path)
	if err != nil {
		t.Fatalf("Load after reset: %v", err)
	}
	if !table.IsIdentity() {
		t.Fatalf("reset table is not identity: %+v", table.Keyframes())
	}
}

func TestRemapFailedEditLeavesFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "remap.toml")
	if _, _, err := runCLI(t, []string{"remap", "init", path, "--frames", "10"}, ""); err != nil {
		t.Fatalf("remap init: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, _, err := runCLI(t, []string{"remap", "move", path, "7", "0.3"}, ""); err == nil {
		t.Fatal("expected out of range index to fail")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(before) != string(after) {
		t.Fatal("failed edit rewrote the table")
	}
}

func TestInspectContainer(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "anim.apk")
	writeContainer(t, path, 3)

	out, _, err := runCLI(t, []string{"inspect", path}, env.configPath)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	requireContains(t, out, "2.0.0")
	requireContains(t, out, "zlib")
	requireContains(t, out, "4x2")
	requireContains(t, out, "10 fps")
	requireContains(t, out, "300ms")
	digest, _, err := fileutil.SHA256File(path)
	if err != nil {
		t.Fatalf("SHA256File: %v", err)
	}
	requireContains(t, out, digest)
}

func TestInspectRejectsGarbage(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.baseDir, "garbage.apk")
	if err := os.WriteFile(path, []byte("not a container"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := runCLI(t, []string{"inspect", path}, env.configPath); err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestUnpackAndJobHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "anim.apk")
	writeContainer(t, input, 2)
	outDir := filepath.Join(env.baseDir, "frames")

	out, _, err := runCLI(t, []string{"unpack", input, outDir}, env.configPath)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	requireContains(t, out, "Extracted 2 images and 1 audio clips")
	for _, name := range []string{"frame_00000.png", "frame_00001.png", "audio_0.mp3"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	out, _, err = runCLI(t, []string{"jobs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "unpack")
	requireContains(t, out, "Succeeded")

	out, _, err = runCLI(t, []string{"jobs", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list --status: %v", err)
	}
	requireContains(t, out, "No jobs recorded")

	if _, _, err := runCLI(t, []string{"jobs", "list", "--status", "exploded"}, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	store, err := jobs.OpenPath(filepath.Join(env.baseDir, "state", "jobs.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	list, err := store.List(context.Background(), 0)
	store.Close()
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one recorded job, got %d (%v)", len(list), err)
	}

	out, _, err = runCLI(t, []string{"jobs", "show", list[0].ID[:8]}, env.configPath)
	if err != nil {
		t.Fatalf("jobs show: %v", err)
	}
	requireContains(t, out, list[0].ID)
	requireContains(t, out, outDir)
}

func TestUnpackFailureRecordedAsFailed(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "broken.apk")
	if err := os.WriteFile(input, []byte{0x78, 0x9c, 0x01}, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := runCLI(t, []string{"unpack", input, filepath.Join(env.baseDir, "out")}, env.configPath); err == nil {
		t.Fatal("expected unpack to fail")
	}
	out, _, err := runCLI(t, []string{"jobs", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	requireContains(t, out, "Failed")
}

func TestCarrierFromContainer(t *testing.T) {
	skipWithoutShell(t)
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "anim.apk")
	writeContainer(t, input, 2)
	output := filepath.Join(env.baseDir, "out", "carrier.mp4")

	out, _, err := runCLI(t, []string{"carrier", input, output, "--mode", "alpha-left", "--quality", "60"}, env.configPath)
	if err != nil {
		t.Fatalf("carrier: %v", err)
	}
	requireContains(t, out, "alpha-left")
	requireContains(t, out, "carrier 8x2")

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read carrier: %v", err)
	}
	// Two frames of 8x2 rgb24.
	if len(data) != 2*8*2*3 {
		t.Fatalf("carrier holds %d bytes of raw frames", len(data))
	}
}

func TestCarrierRejectsBadMode(t *testing.T) {
	env := setupCLITestEnv(t)
	input := filepath.Join(env.baseDir, "anim.apk")
	writeContainer(t, input, 1)
	_, _, err := runCLI(t, []string{"carrier", input, filepath.Join(env.baseDir, "x.mp4"), "--mode", "sideways"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid options") {
		t.Fatalf("expected invalid options error, got %v", err)
	}
}

func TestDoctorReportsTools(t *testing.T) {
	skipWithoutShell(t)
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "[OK]")
	requireContains(t, out, "ffmpeg version 7.1-test")
	// libmp3lame is absent from the fake encoder list but optional.
	requireContains(t, out, "[WARN]")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tc := range tests {
		if got := formatBytes(tc.in); got != tc.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
