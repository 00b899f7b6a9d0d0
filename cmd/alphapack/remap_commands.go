package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"alphapack/internal/config"
	"alphapack/internal/speedremap"
)

func newRemapCommand() *cobra.Command {
	remapCmd := &cobra.Command{
		Use:         "remap",
		Short:       "Edit speed remap tables",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}

	remapCmd.AddCommand(newRemapInitCommand())
	remapCmd.AddCommand(newRemapShowCommand())
	remapCmd.AddCommand(newRemapAddCommand())
	remapCmd.AddCommand(newRemapMoveCommand())
	remapCmd.AddCommand(newRemapSetCommand())
	remapCmd.AddCommand(newRemapDeleteCommand())
	remapCmd.AddCommand(newRemapResetCommand())

	return remapCmd
}

func newRemapInitCommand() *cobra.Command {
	var frames uint32
	var fps float64
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "init <table.toml>",
		Short: "Create an identity remap table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if frames == 0 {
				return errors.New("--frames must be greater than zero")
			}
			if fps <= 0 {
				return errors.New("--fps must be greater than zero")
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if !overwrite {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("remap table already exists at %s (use --overwrite to replace it)", path)
				}
			}
			table := speedremap.New(frames, fps)
			if err := table.Save(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote identity remap for %d frames at %s to %s\n", frames, formatFPS(fps), path)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&frames, "frames", 0, "Source clip frame count")
	cmd.Flags().Float64Var(&fps, "fps", 30, "Source clip frame rate")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing table")
	return cmd
}

func newRemapShowCommand() *cobra.Command {
	var outputFPS float64

	cmd := &cobra.Command{
		Use:   "show <table.toml>",
		Short: "List keyframes and segment speeds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, _, err := loadRemapTable(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := make([][]string, 0, table.Len())
			for i, k := range table.Keyframes() {
				role := ""
				if k.Endpoint {
					role = "endpoint"
				}
				rows = append(rows, []string{
					strconv.Itoa(i),
					strconv.FormatFloat(k.Position, 'f', 4, 64),
					strconv.FormatUint(uint64(k.SourceFrame), 10),
					fmt.Sprintf("%.2fx", table.SpeedAt(k.SourceFrame)),
					role,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Position", "Source", "Speed", ""},
				rows,
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignLeft},
			))

			fps := outputFPS
			if fps <= 0 {
				fps = table.SourceFPS()
			}
			fmt.Fprintf(out, "Source: %d frames at %s\n", table.TotalFrames(), formatFPS(table.SourceFPS()))
			fmt.Fprintf(out, "Output: %d frames at %s\n", table.OutputFrameCount(fps), formatFPS(fps))
			return nil
		},
	}
	cmd.Flags().Float64Var(&outputFPS, "output-fps", 0, "Output frame rate used for the frame count (0 uses the source rate)")
	return cmd
}

func newRemapAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <table.toml> <position> [source-frame]",
		Short: "Insert a keyframe; without a source frame the current mapping is kept",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := parsePosition(args[1])
			if err != nil {
				return err
			}
			return editRemapTable(cmd, args[0], func(table *speedremap.Table) (string, error) {
				var index int
				if len(args) == 3 {
					frame, err := parseSourceFrame(args[2])
					if err != nil {
						return "", err
					}
					index, err = table.Add(position, frame)
					if err != nil {
						return "", err
					}
				} else {
					index, err = table.AddAt(position)
					if err != nil {
						return "", err
					}
				}
				return fmt.Sprintf("Added keyframe %d at %s", index, args[1]), nil
			})
		},
	}
}

func newRemapMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <table.toml> <index> <position>",
		Short: "Move a keyframe to a new output position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			position, err := parsePosition(args[2])
			if err != nil {
				return err
			}
			return editRemapTable(cmd, args[0], func(table *speedremap.Table) (string, error) {
				if err := table.Move(index, position); err != nil {
					return "", err
				}
				return fmt.Sprintf("Moved keyframe %d to %s", index, args[2]), nil
			})
		},
	}
}

func newRemapSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <table.toml> <index> <source-frame>",
		Short: "Change the source frame of a keyframe",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			frame, err := parseSourceFrame(args[2])
			if err != nil {
				return err
			}
			return editRemapTable(cmd, args[0], func(table *speedremap.Table) (string, error) {
				if err := table.SetSourceFrame(index, frame); err != nil {
					return "", err
				}
				return fmt.Sprintf("Keyframe %d now maps to source frame %d", index, frame), nil
			})
		},
	}
}

func newRemapDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <table.toml> <index>",
		Short: "Remove an interior keyframe",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return editRemapTable(cmd, args[0], func(table *speedremap.Table) (string, error) {
				if err := table.Delete(index); err != nil {
					return "", err
				}
				return fmt.Sprintf("Deleted keyframe %d", index), nil
			})
		},
	}
}

func newRemapResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <table.toml>",
		Short: "Restore identity playback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editRemapTable(cmd, args[0], func(table *speedremap.Table) (string, error) {
				table.Reset()
				return "Reset remap to identity", nil
			})
		},
	}
}

func loadRemapTable(arg string) (*speedremap.Table, string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(arg))
	if err != nil {
		return nil, "", err
	}
	table, err := speedremap.Load(path)
	if err != nil {
		return nil, "", err
	}
	return table, path, nil
}

// editRemapTable loads the table, applies edit and saves it only when the
// edit succeeds.
func editRemapTable(cmd *cobra.Command, arg string, edit func(*speedremap.Table) (string, error)) error {
	table, path, err := loadRemapTable(arg)
	if err != nil {
		return err
	}
	message, err := edit(table)
	if err != nil {
		return err
	}
	if err := table.Save(path); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), message)
	return nil
}

func parsePosition(raw string) (float64, error) {
	position, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q: %w", raw, err)
	}
	return position, nil
}

func parseIndex(raw string) (int, error) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid keyframe index %q", raw)
	}
	return index, nil
}

func parseSourceFrame(raw string) (uint32, error) {
	frame, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid source frame %q: %w", raw, err)
	}
	return uint32(frame), nil
}
