package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"alphapack/internal/container"
	"alphapack/internal/raster"
	"alphapack/internal/testsupport"
)

// fakeFFmpeg answers the version and encoder probes and otherwise copies
// stdin to the output path, which the carrier writer passes last.
const fakeFFmpeg = `case "$2" in
-version) echo "ffmpeg version 7.1-test"; exit 0 ;;
-encoders) printf ' ------\n V....D libx264 H.264\n A....D aac AAC\n'; exit 0 ;;
esac
for arg in "$@"; do out="$arg"; done
cat > "$out"
`

type cliTestEnv struct {
	baseDir    string
	configPath string
	ffmpeg     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	ffmpeg := testsupport.WriteScript(t, filepath.Join(base, "bin", "ffmpeg"), fakeFFmpeg)
	testsupport.WriteScript(t, filepath.Join(base, "bin", "ffprobe"), "")

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "alphapack.toml"),
		ffmpeg:     ffmpeg,
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q
log_dir = %q
state_dir = %q

[pool]
min_workers = 1
max_workers = 2

[ffmpeg]
ffmpeg_binary = %q
ffprobe_binary = %q

[logging]
level = "error"
`,
		filepath.Join(env.baseDir, "work"),
		filepath.Join(env.baseDir, "logs"),
		filepath.Join(env.baseDir, "state"),
		env.ffmpeg,
		filepath.Join(env.baseDir, "bin", "ffprobe"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg needs /bin/sh")
	}
}

// writeContainer stores frames gradient frames and one audio clip.
func writeContainer(t *testing.T, path string, frames int) {
	t.Helper()
	doc := container.NewDocument(4, 2, 10)
	for i := range frames {
		data, err := raster.EncodePNG(testsupport.Gradient(4, 2, i*30), 4, 2, raster.LevelFast)
		if err != nil {
			t.Fatalf("EncodePNG: %v", err)
		}
		doc.AddFrame(data)
	}
	doc.Audios = append(doc.Audios, container.AudioClip{
		Key:         "audio_0",
		EndFrame:    uint32(frames - 1),
		TotalTimeMs: doc.DurationMs(),
		Data:        []byte("ID3 fake mp3"),
	})
	doc.BuildFrameSprites()
	if _, err := container.WriteFile(path, doc); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}
