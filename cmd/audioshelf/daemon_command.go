package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audioshelf/internal/api"
	"audioshelf/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the audioshelf daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(cmd, status)
			return nil
		},
	}
}

func renderDaemonStatus(cmd *cobra.Command, status api.DaemonStatus) {
	out := cmd.OutOrStdout()
	printFields(out, [][2]string{
		{"Running", yesNo(status.Running)},
		{"PID", strconv.Itoa(status.PID)},
		{"Input", status.InputDir},
		{"Output", status.OutputDir},
		{"Dry run", yesNo(status.DryRun)},
		{"Queue DB", status.QueueDBPath},
		{"Workers", strconv.Itoa(status.Workflow.Workers)},
		{"Active", strings.Join(status.Workflow.ActiveItems, ", ")},
		{"Stalled", strconv.Itoa(status.Workflow.Stalled)},
		{"Tracked", strconv.Itoa(status.Pipeline.TrackedEntries)},
		{"Open groups", strconv.Itoa(status.Pipeline.OpenGroups)},
		{"Last error", status.Workflow.LastError},
	})

	if len(status.Workflow.StageHealth) > 0 {
		rows := make([][]string, 0, len(status.Workflow.StageHealth))
		for _, h := range status.Workflow.StageHealth {
			rows = append(rows, []string{h.Name, yesNo(h.Ready), h.Detail})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Stage", "Ready", "Detail"}, rows, nil))
	}
	if rows := buildQueueStatusRows(status.Workflow.QueueStats); len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
}

func newRescanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rescan",
		Short: "Ask the monitor to walk the input directory again",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Rescan(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Rescan requested")
			return nil
		},
	}
}
