package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"audioshelf/internal/queue"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func statusColor(status string) string {
	switch status {
	case "done":
		return ansiGreen
	case "manual_intervention":
		return ansiYellow
	case "error":
		return ansiRed
	case "processing":
		return ansiBlue
	default:
		return ""
	}
}

func colorStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	if color := statusColor(status); color != "" {
		return color + status + ansiReset
	}
	return status
}

// printFields writes aligned "label: value" lines, skipping empty values.
func printFields(out io.Writer, pairs [][2]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		if strings.TrimSpace(p[1]) == "" {
			continue
		}
		fmt.Fprintf(out, "%-*s  %s\n", width+1, p[0]+":", p[1])
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

// metadataRows lists the populated fields in display order.
func metadataRows(meta queue.Metadata) [][2]string {
	var rows [][2]string
	for _, field := range queue.MetadataFields {
		if value := meta.Get(field); value != "" {
			rows = append(rows, [2]string{field, value})
		}
	}
	return rows
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}
