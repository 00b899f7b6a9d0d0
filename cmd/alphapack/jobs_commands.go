package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"alphapack/internal/jobs"
)

var titleCaser = cases.Title(language.Und)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the run history",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statusFlags []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *jobs.Store) error {
				list, err := store.List(cmd.Context(), limit, statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(out, "No jobs recorded")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Kind),
						titleCaser.String(string(job.Status)),
						progressLabel(job),
						formatTimestamp(job.CreatedAt),
						formatDuration(job.Duration()),
						job.InputPath,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Kind", "Status", "Progress", "Started", "Elapsed", "Input"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run and its recorded warnings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *jobs.Store) error {
				job, err := store.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				events, err := store.Events(cmd.Context(), job.ID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"ID", job.ID},
					{"Kind", string(job.Kind)},
					{"Status", titleCaser.String(string(job.Status))},
					{"Input", job.InputPath},
					{"Output", job.OutputPath},
					{"Stage", dashIfEmpty(job.Stage)},
					{"Progress", progressLabel(job)},
					{"Written", formatBytes(job.OutputBytes)},
					{"Created", formatTimestamp(job.CreatedAt)},
				}
				if job.Status.Terminal() {
					rows = append(rows, []string{"Finished", formatTimestamp(job.FinishedAt)})
				}
				rows = append(rows, []string{"Elapsed", formatDuration(job.Duration())})
				if job.ErrorMessage != "" {
					rows = append(rows, []string{"Error", job.ErrorMessage})
				}
				fmt.Fprintln(out, renderKeyValues(rows))
				if len(events) == 0 {
					return nil
				}
				eventRows := make([][]string, 0, len(events))
				for _, ev := range events {
					eventRows = append(eventRows, []string{
						formatTimestamp(ev.CreatedAt),
						strings.ToUpper(ev.Level),
						dashIfEmpty(ev.EventType),
						ev.Message,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Level", "Event", "Message"}, eventRows, nil))
				return nil
			})
		},
	}
}

func parseStatusFilters(values []string) ([]jobs.Status, error) {
	var out []jobs.Status
	for _, raw := range values {
		status := jobs.Status(strings.ToLower(strings.TrimSpace(raw)))
		switch status {
		case jobs.StatusPending, jobs.StatusRunning, jobs.StatusSucceeded, jobs.StatusFailed, jobs.StatusCancelled:
			out = append(out, status)
		case "":
		default:
			return nil, fmt.Errorf("unknown status %q", raw)
		}
	}
	return out, nil
}

func progressLabel(job *jobs.Job) string {
	if job.FramesTotal <= 0 {
		if job.Status == jobs.StatusSucceeded {
			return "100%"
		}
		return "-"
	}
	return formatPercent(job.ProgressPercent) + " (" + strconv.Itoa(job.FramesDone) + "/" + strconv.Itoa(job.FramesTotal) + ")"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
