package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"alphapack/internal/deps"
	"alphapack/internal/preflight"
	"alphapack/internal/staging"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Configuration", colorize)
			configPath := ctx.configPath
			if configPath == "" {
				configPath = "(defaults)"
			}
			lines = append(lines, renderStatusLine("Config", statusInfo, configPath, colorize))
			lines = append(lines, renderStatusLine("Job ledger", statusInfo, ledgerLabel(cfg.Jobs.Enabled, cfg.JobsDBPath()), colorize))
			if scratch, err := staging.List(cfg.Paths.WorkDir); err == nil && len(scratch) > 0 {
				lines = append(lines, renderStatusLine("Scratch files", statusWarn,
					fmt.Sprintf("%d left in work dir (%s)", len(scratch), formatBytes(staging.TotalSize(scratch))), colorize))
			}

			results := preflight.RunAll(cfg)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Directories", colorize)...)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}

			statuses := preflight.CheckSystemDeps(cmd.Context(), cfg)
			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
			for _, s := range statuses {
				lines = append(lines, renderStatusLine(s.Name, depStatusKind(s), depDetail(s), colorize))
			}
			if version, err := deps.FFmpegVersion(cmd.Context(), cfg.FFmpegBinary()); err == nil {
				lines = append(lines, renderStatusLine("FFmpeg version", statusInfo, version, colorize))
			}

			fmt.Fprintln(out, strings.Join(lines, "\n"))

			failed := preflight.Failed(results)
			missing := preflight.RequiredDepsMissing(statuses)
			if len(failed) > 0 || len(missing) > 0 {
				return errors.New(problemSummary(len(failed), len(missing)))
			}
			return nil
		},
	}
}

func depStatusKind(s deps.Status) statusKind {
	switch {
	case s.Available:
		return statusOK
	case s.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func depDetail(s deps.Status) string {
	if s.Available {
		if s.Path != "" {
			return s.Path
		}
		return s.Description
	}
	if s.Detail != "" {
		return s.Detail
	}
	return s.Description
}

func ledgerLabel(enabled bool, path string) string {
	if !enabled {
		return "disabled"
	}
	return path
}

func problemSummary(dirs, tools int) string {
	var parts []string
	if dirs > 0 {
		parts = append(parts, fmt.Sprintf("%d directory check(s) failed", dirs))
	}
	if tools > 0 {
		parts = append(parts, fmt.Sprintf("%d required tool(s) missing", tools))
	}
	return strings.Join(parts, "; ")
}
