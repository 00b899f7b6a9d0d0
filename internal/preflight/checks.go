package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"alphapack/internal/config"
	"alphapack/internal/deps"
)

// CheckDirectoryAccess passes when path is a directory the process can list,
// create files in and traverse.
func CheckDirectoryAccess(name, path string) Result {
	fail := func(reason string) Result {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", path, reason)}
	}
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fail("does not exist")
	case err != nil:
		return fail("stat: " + err.Error())
	case !info.IsDir():
		return fail("is not a directory")
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fail("insufficient permissions: " + err.Error())
	}
	return Result{Name: name, Passed: true, Detail: path + " (read/write ok)"}
}

// CheckSystemDeps resolves ffmpeg and ffprobe, then asks ffmpeg for its
// encoder list when it was found.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Required to decode and encode carriers"},
		{Name: "FFprobe", Command: cfg.FFprobeBinary(), Description: "Required for carrier inspection"},
	})
	if ffmpeg := statuses[0]; ffmpeg.Available {
		statuses = append(statuses, deps.CheckEncoders(ctx, ffmpeg.Path, deps.RequiredEncoders)...)
	}
	return statuses
}
