package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"alphapack/internal/config"
	"alphapack/internal/container"
	"alphapack/internal/fileutil"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <container.apk>",
		Short: "Summarize an animation container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read container: %w", err)
			}
			limit := int64(cfg.Container.MaxDecodedMiB) << 20
			if limit > 0 && int64(len(data)) > limit {
				return fmt.Errorf("container %s is larger than the %d MiB decode limit", path, cfg.Container.MaxDecodedMiB)
			}
			info, err := container.Inspect(data)
			if err != nil {
				return err
			}
			digest, _, err := fileutil.SHA256File(path)
			if err != nil {
				return fmt.Errorf("hash container: %w", err)
			}
			rows := [][]string{
				{"File", path},
				{"Version", info.Version},
				{"Compression", info.Compression.String()},
				{"Size", fmt.Sprintf("%dx%d", info.Width, info.Height)},
				{"Frame rate", formatFPS(float64(info.FPS))},
				{"Frames", fmt.Sprintf("%d", info.FrameCount)},
				{"Duration", formatDuration(time.Duration(info.DurationMs) * time.Millisecond)},
				{"Images", fmt.Sprintf("%d (%s)", info.ImageCount, formatBytes(int64(info.ImageBytes)))},
				{"Audio clips", fmt.Sprintf("%d", info.AudioCount)},
				{"Sprites", fmt.Sprintf("%d", info.SpriteCount)},
				{"File size", formatBytes(int64(len(data)))},
				{"SHA-256", digest},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(rows))
			return nil
		},
	}
}
