package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// RequiredEncoders are the ffmpeg encoders the carrier and audio paths use.
var RequiredEncoders = []string{"libx264", "aac", "libmp3lame"}

// FFmpegVersion returns the first line of `ffmpeg -version`.
func FFmpegVersion(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-version").Output() //nolint:gosec
	if err != nil {
		return "", fmt.Errorf("ffmpeg -version: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// CheckEncoders lists `ffmpeg -encoders` and reports one Status per wanted
// encoder.
func CheckEncoders(ctx context.Context, binary string, wanted []string) []Status {
	results := make([]Status, 0, len(wanted))
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").Output() //nolint:gosec
	available := map[string]bool{}
	if err == nil {
		available = parseEncoders(out)
	}
	for _, name := range wanted {
		status := Status{Requirement: Requirement{
			Name:        "encoder " + name,
			Command:     binary,
			Description: encoderDescription(name),
			Optional:    name != "libx264",
		}}
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("cannot list encoders: %v", err)
		case available[name]:
			status.Available = true
		default:
			status.Detail = fmt.Sprintf("ffmpeg build lacks %s", name)
		}
		results = append(results, status)
	}
	return results
}

// parseEncoders reads the encoder table, whose rows look like
// " V....D libx264              libx264 H.264 ...".
func parseEncoders(out []byte) map[string]bool {
	found := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	pastHeader := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !pastHeader {
			pastHeader = strings.HasPrefix(line, "------")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 {
			found[fields[1]] = true
		}
	}
	return found
}

func encoderDescription(name string) string {
	switch name {
	case "libx264":
		return "Required to encode carrier video"
	case "aac":
		return "Required to mux carrier audio"
	case "libmp3lame":
		return "Required to embed container audio"
	default:
		return ""
	}
}
