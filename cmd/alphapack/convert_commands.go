package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alphapack/internal/config"
	"alphapack/internal/pipeline"
	"alphapack/internal/speedremap"
)

// carrierFlags override the [carrier] section for one invocation.
type carrierFlags struct {
	width     int
	height    int
	fps       float64
	quality   int
	mode      string
	matte     string
	muted     bool
	remapPath string
}

func (f *carrierFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.width, "width", 0, "Output frame width (0 keeps the configured value)")
	flags.IntVar(&f.height, "height", 0, "Output frame height (0 keeps the configured value)")
	flags.Float64Var(&f.fps, "fps", 0, "Output frame rate (0 keeps the configured value)")
	flags.StringVar(&f.remapPath, "remap", "", "Speed remap table to apply to the source timeline")
	flags.BoolVar(&f.muted, "muted", false, "Drop audio")
}

// apply copies explicitly set flags onto cfg and revalidates it.
func (f *carrierFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Carrier.Width = f.width
	}
	if flags.Changed("height") {
		cfg.Carrier.Height = f.height
	}
	if flags.Changed("fps") {
		cfg.Carrier.FPS = f.fps
	}
	if flags.Changed("quality") {
		cfg.Carrier.Quality = f.quality
	}
	if flags.Changed("mode") {
		cfg.Carrier.ChannelMode = strings.ToLower(strings.TrimSpace(f.mode))
	}
	if flags.Changed("matte") {
		cfg.Carrier.MatteSide = strings.ToLower(strings.TrimSpace(f.matte))
	}
	if flags.Changed("muted") {
		cfg.Carrier.Muted = f.muted
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func (f *carrierFlags) loadRemap() (*speedremap.Table, error) {
	path := strings.TrimSpace(f.remapPath)
	if path == "" {
		return nil, nil
	}
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	return speedremap.Load(expanded)
}

func newPackCommand(ctx *commandContext) *cobra.Command {
	var flags carrierFlags
	var compression string
	var noSprites bool

	cmd := &cobra.Command{
		Use:   "pack <carrier.mp4> <output.apk>",
		Short: "Recover RGBA frames from a carrier video into an animation container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("compression") {
				cfg.Container.Compression = strings.ToLower(strings.TrimSpace(compression))
			}
			if noSprites {
				cfg.Container.FrameSprites = false
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			table, err := flags.loadRemap()
			if err != nil {
				return err
			}
			input, output, err := expandArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, _ *config.Config, rt *pipeline.Runtime) error {
				result, err := rt.Pack(runCtx, pipeline.PackRequest{Input: input, Output: output, Remap: table})
				if err != nil {
					return err
				}
				matte := result.Matte.String()
				if result.MatteDetected {
					matte += " (detected)"
				}
				rows := [][]string{
					{"Job", result.JobID},
					{"Output", result.Output},
					{"Size", fmt.Sprintf("%dx%d", result.Width, result.Height)},
					{"Frame rate", formatFPS(result.FPS)},
					{"Frames", fmt.Sprintf("%d (%d unique)", result.Frames, result.UniqueFrames)},
					{"Matte", matte},
					{"Audio", formatBytes(int64(result.AudioBytes))},
					{"Written", formatBytes(int64(result.Bytes))},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(rows))
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.matte, "matte", "", "Matte half of the carrier (auto, left, right)")
	cmd.Flags().StringVar(&compression, "compression", "", "Container compression (zlib, zstd)")
	cmd.Flags().BoolVar(&noSprites, "no-sprites", false, "Skip the per-frame sprite list")
	return cmd
}

func newCarrierCommand(ctx *commandContext) *cobra.Command {
	var flags carrierFlags
	var audioPath string

	cmd := &cobra.Command{
		Use:   "carrier <container.apk|png-dir> <output.mp4>",
		Short: "Encode RGBA frames into a dual-channel carrier video",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := flags.apply(cmd, cfg); err != nil {
				return err
			}
			table, err := flags.loadRemap()
			if err != nil {
				return err
			}
			input, output, err := expandArgs(args[0], args[1])
			if err != nil {
				return err
			}
			if strings.TrimSpace(audioPath) != "" {
				if audioPath, err = config.ExpandPath(audioPath); err != nil {
					return err
				}
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, _ *config.Config, rt *pipeline.Runtime) error {
				result, err := rt.BuildCarrier(runCtx, pipeline.CarrierRequest{
					Input:  input,
					Output: output,
					Remap:  table,
					Audio:  audioPath,
				})
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Job", result.JobID},
					{"Output", result.Output},
					{"Size", fmt.Sprintf("%dx%d (carrier %dx%d)", result.Width, result.Height, result.Width*2, result.Height)},
					{"Frame rate", formatFPS(result.FPS)},
					{"Frames", fmt.Sprintf("%d", result.Frames)},
					{"Channel mode", result.Mode},
					{"Audio", yesNo(result.Audio)},
					{"Written", formatBytes(result.Bytes)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderKeyValues(rows))
				return nil
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&flags.quality, "quality", 0, "Encode quality 0-100")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "Channel layout (color-left, alpha-left)")
	cmd.Flags().StringVar(&audioPath, "audio", "", "Audio file to mux instead of the embedded clip")
	return cmd
}

func newUnpackCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <container.apk> <output-dir>",
		Short: "Extract container images and audio to a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, output, err := expandArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(runCtx context.Context, _ *config.Config, rt *pipeline.Runtime) error {
				result, err := rt.Unpack(runCtx, pipeline.UnpackRequest{Input: input, OutputDir: output})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d images and %d audio clips (%s) to %s\n",
					len(result.Images), len(result.Audios), formatBytes(result.Bytes), result.Dir)
				return nil
			})
		},
	}
}

func expandArgs(input, output string) (string, string, error) {
	in, err := config.ExpandPath(strings.TrimSpace(input))
	if err != nil {
		return "", "", fmt.Errorf("resolve input: %w", err)
	}
	out, err := config.ExpandPath(strings.TrimSpace(output))
	if err != nil {
		return "", "", fmt.Errorf("resolve output: %w", err)
	}
	return in, out, nil
}
