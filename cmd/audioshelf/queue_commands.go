package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"audioshelf/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and review queued audiobooks",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueuePreviewCommand(ctx))
	queueCmd.AddCommand(newQueueProcessCommand(ctx))
	queueCmd.AddCommand(newQueueIgnoreCommand(ctx))
	queueCmd.AddCommand(newQueueUpdateCommand(ctx))
	queueCmd.AddCommand(newQueueSearchCommand(ctx))
	queueCmd.AddCommand(newQueueApplyCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			items, err := client.List(cmd.Context(), statuses)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueListResponse{Items: items})
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			colorize := shouldColorize(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Author", "Status", "Stage", "Conf"},
				buildQueueListRows(items, colorize),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func buildQueueListRows(items []api.QueueItem, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		status := item.Status
		if item.Active {
			status += "*"
		}
		rows = append(rows, []string{
			item.ID,
			truncate(item.Metadata.Title, 40),
			truncate(item.Metadata.Author, 28),
			colorStatus(status, colorize),
			item.Stage,
			strconv.Itoa(item.Confidence),
		})
	}
	return rows
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	var rows [][]string
	for _, status := range []string{"pending", "processing", "manual_intervention", "error", "done"} {
		if count := stats[status]; count > 0 {
			rows = append(rows, []string{status, strconv.Itoa(count)})
		}
	}
	return rows
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Aliases: []string{"stats"},
		Short:   "Show item counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			counts, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueStatsResponse{Counts: counts})
			}
			rows := buildQueueStatusRows(counts)
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one queue item with its metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueItemResponse{Item: item})
			}
			renderItem(cmd, item)
			return nil
		},
	}
}

func renderItem(cmd *cobra.Command, item api.QueueItem) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	printFields(out, [][2]string{
		{"ID", item.ID},
		{"Source", item.SourcePath},
		{"Status", colorStatus(item.Status, colorize)},
		{"Stage", item.Stage},
		{"Active", yesNo(item.Active)},
		{"Confidence", strconv.Itoa(item.Confidence)},
		{"Match", item.MatchSource},
		{"Mode", item.Mode},
		{"Confirmed", yesNo(item.Confirmed)},
		{"Reason", item.Reason},
		{"Progress", item.ProgressMessage},
		{"Destination", item.DestinationPath},
		{"Updated", item.UpdatedAt},
	})

	meta := item.Metadata
	fields := metadataRows(meta)
	rows := make([][]string, 0, len(fields))
	for _, field := range fields {
		rows = append(rows, []string{field[0], truncate(field[1], 60), string(meta.Sources[field[0]])})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Field", "Value", "Source"}, rows, nil))
	}
	if len(item.Files) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Files (%d):\n", len(item.Files))
		for _, f := range item.Files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
}

func newQueuePreviewCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "preview <id>",
		Short: "Show where an item would be organized",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Preview(cmd.Context(), args[0], mode)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			plan := resp.Plan
			out := cmd.OutOrStdout()
			printFields(out, [][2]string{
				{"Destination", plan.Destination},
				{"Mode", plan.Mode},
				{"Size", humanBytes(plan.TotalBytes)},
				{"Exists", yesNo(plan.Exists)},
				{"Eligible", yesNo(plan.Eligible)},
				{"Reason", plan.Reason},
			})
			rows := make([][]string, 0, len(plan.Files))
			for _, f := range plan.Files {
				rows = append(rows, []string{f.Source, f.Target})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable([]string{"Source", "Target"}, rows, nil))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Organize mode to preview (copy or move)")
	return cmd
}

func newQueueProcessCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "process <id>",
		Short: "Confirm an item and organize it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.Process(cmd.Context(), args[0], mode)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueItemResponse{Item: item})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for organization (%s)\n", item.ID, item.Mode)
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Organize mode (copy or move); defaults to library.default_mode")
	return cmd
}

func newQueueIgnoreCommand(ctx *commandContext) *cobra.Command {
	var removeSource bool

	cmd := &cobra.Command{
		Use:   "ignore <id>",
		Short: "Drop an item from the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.Ignore(cmd.Context(), args[0], removeSource); err != nil {
				return err
			}
			msg := "Ignored " + args[0]
			if removeSource {
				msg += " and removed its source"
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&removeSource, "remove-source", false, "Also delete the source files from the input directory")
	return cmd
}

func newQueueUpdateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "update <id> field=value...",
		Short: "Correct metadata fields on an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFieldArgs(args[1:])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.Update(cmd.Context(), args[0], fields)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueItemResponse{Item: item})
			}
			renderItem(cmd, item)
			return nil
		},
	}
}

func parseFieldArgs(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid field %q: expected field=value", arg)
		}
		fields[key] = value
	}
	return fields, nil
}

func newQueueSearchCommand(ctx *commandContext) *cobra.Command {
	var req api.SearchRequest

	cmd := &cobra.Command{
		Use:   "search <id> [query]",
		Short: "Search metadata providers for an item",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				req.Query = args[1]
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Search(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			if len(resp.Failed) > 0 {
				fmt.Fprintf(out, "Providers failed: %s\n", strings.Join(resp.Failed, ", "))
			}
			if len(resp.Candidates) == 0 {
				fmt.Fprintln(out, "No candidates found")
				return nil
			}
			rows := make([][]string, 0, len(resp.Candidates))
			for _, c := range resp.Candidates {
				rows = append(rows, []string{
					strconv.Itoa(c.Index), c.Provider, strconv.Itoa(c.Score),
					truncate(c.Title, 40), truncate(c.Author, 28), c.Series, c.Year,
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"#", "Provider", "Score", "Title", "Author", "Series", "Year"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Apply one with: audioshelf queue apply %s <#>\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Author, "author", "", "Author to search for")
	cmd.Flags().StringVar(&req.ISBN, "isbn", "", "ISBN to look up")
	cmd.Flags().StringVar(&req.ASIN, "asin", "", "Audible ASIN to look up")
	return cmd
}

func newQueueApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id> <index>",
		Short: "Apply a candidate from the last search",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid candidate index %q", args[1])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			resp, err := client.Apply(cmd.Context(), args[0], index)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, resp)
			}
			if len(resp.Changed) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No fields changed")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", strings.Join(resp.Changed, ", "))
			}
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Requeue a failed or held item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := client.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, api.QueueItemResponse{Item: item})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Retrying %s from %s\n", item.ID, item.Stage)
			return nil
		},
	}
}
