package main

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"docbridge/internal/queue"
	"docbridge/internal/textutil"
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
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

const (
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

func renderHeading(w io.Writer, title string) string {
	line := strings.ToUpper(title)
	if shouldColorize(w) {
		return ansiBold + line + ansiReset
	}
	return line
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func taskRow(task *queue.Task) []string {
	title := textutil.Truncate(task.DocumentTitle, 40)
	message := textutil.Snippet(task.ErrorMessage, 48)
	return []string{
		task.TaskNumber,
		string(task.SourcePlatform) + " to " + string(task.TargetPlatform),
		task.SourceID,
		title,
		string(task.Status),
		strconv.Itoa(task.AttemptCount) + "/" + strconv.Itoa(task.MaxAttempts),
		message,
	}
}
