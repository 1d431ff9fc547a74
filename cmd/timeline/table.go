package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"lifestory/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    48,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

var itemHeaders = []string{"ID", "Type", "Status", "Title", "Retries", "Created", "Error"}

func itemRows(items []models.TimelineItem) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		errText := item.Error
		if errText != "" && item.WillRetry {
			errText += " (will retry)"
		}
		rows = append(rows, []string{
			item.ID,
			string(item.Type),
			string(item.Status),
			item.Title,
			strconv.Itoa(item.RetryCount),
			item.CreatedAt.Local().Format(time.DateTime),
			errText,
		})
	}
	return rows
}

func printItems(out io.Writer, items []models.TimelineItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No timeline items")
		return
	}
	fmt.Fprintln(out, renderTable(itemHeaders, itemRows(items), []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight}))
}

func printStats(out io.Writer, stats models.TimelineStats) {
	rows := make([][]string, 0, len(models.AllStatuses)+3)
	for _, status := range models.AllStatuses {
		rows = append(rows, []string{string(status), strconv.Itoa(stats.ByStatus[status])})
	}
	rows = append(rows,
		[]string{"total", strconv.Itoa(stats.Total)},
		[]string{"in book", strconv.Itoa(stats.InBook)},
		[]string{"retry queue", strconv.Itoa(stats.RetryQueueSize)},
	)
	fmt.Fprintln(out, renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
