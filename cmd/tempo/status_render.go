package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"tempo/internal/audioserver"
	"tempo/internal/client"
	"tempo/internal/deps"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

// statusRow is one labelled line of a report.
type statusRow struct {
	label   string
	kind    statusKind
	message string
}

func infoRow(label, message string) statusRow {
	return statusRow{label: label, kind: statusInfo, message: message}
}

// report is a titled block of status rows.
type report struct {
	title string
	rows  []statusRow
}

// render writes the report to out, coloring it only for terminals. A
// report without rows prints its header alone.
func (r report) render(out io.Writer) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader(r.title, colorize) {
		fmt.Fprintln(out, line)
	}
	for _, row := range r.rows {
		fmt.Fprintln(out, renderStatusLine(row.label, row.kind, row.message, colorize))
	}
}

func serverReport(info client.ServerInfo) report {
	rows := []statusRow{{label: "Status", kind: serverStatusKind(info.Status), message: string(info.Status)}}
	if info.Status == audioserver.StatusStopped && info.Address == "" {
		return report{title: "Audio server", rows: rows}
	}
	rows = append(rows,
		infoRow("Address", info.Address),
		infoRow("Root", info.Root),
		infoRow("Conversion folder", info.Folder),
		infoRow("Converted tracks", fmt.Sprint(info.Conversions)),
	)
	return report{title: "Audio server", rows: rows}
}

func serverStatusKind(status audioserver.Status) statusKind {
	switch status {
	case audioserver.StatusStarted:
		return statusOK
	case audioserver.StatusStarting:
		return statusWarn
	case audioserver.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

// toolRow reports a binary lookup. Missing optional tools only warn since
// the worker degrades without them.
func toolRow(status deps.Status) statusRow {
	row := statusRow{label: status.Name, message: status.Detail}
	switch {
	case status.Available:
		row.kind, row.message = statusOK, status.Command
	case status.Optional:
		row.kind = statusWarn
	default:
		row.kind = statusError
	}
	return row
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if color := statusKindColor(kind); colorize && color != "" {
		return color + line + ansiReset
	}
	return line
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if colorize {
		return []string{ansiBlue + line + ansiReset, ansiBlue + rule + ansiReset}
	}
	return []string{line, rule}
}

// shouldColorize reports whether writer is an interactive terminal.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
