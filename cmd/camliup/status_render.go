package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"camliup/internal/api"
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

var statusStyles = map[statusKind]struct{ tag, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

const labelWidth = 20

// formatStatusLine renders "  Label:   [TAG] message", coloured when asked.
func formatStatusLine(label string, kind statusKind, message string, colorize bool) string {
	style, ok := statusStyles[kind]
	if !ok {
		style = statusStyles[statusInfo]
	}
	tag := "[" + style.tag + "]"
	if message != "" {
		tag += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", labelWidth, label+":", tag)
	if colorize {
		line = style.color + line + ansiReset
	}
	return line
}

// statusPrinter writes the sectioned report used by "camliup status".
type statusPrinter struct {
	w     io.Writer
	color bool
}

func newStatusPrinter(w io.Writer) *statusPrinter {
	return &statusPrinter{w: w, color: shouldColorize(w)}
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(p.w, formatStatusLine(label, kind, message, p.color))
}

func (p *statusPrinter) section(title string) {
	head := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(head))
	if p.color {
		head, rule = ansiBlue+head+ansiReset, ansiBlue+rule+ansiReset
	}
	fmt.Fprintln(p.w, head)
	fmt.Fprintln(p.w, rule)
}

func (p *statusPrinter) blank() { fmt.Fprintln(p.w) }

// checks prints preflight results; failed critical checks render as errors.
func (p *statusPrinter) checks(results []api.CheckResult) {
	p.section("Checks")
	for _, check := range results {
		kind := statusOK
		switch {
		case !check.Passed && check.Critical:
			kind = statusError
		case !check.Passed:
			kind = statusWarn
		}
		p.line(check.Name, kind, check.Detail)
	}
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatBytes(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}

// formatQueuedAt renders an API timestamp relative to now, or "-".
func formatQueuedAt(value string, now time.Time) string {
	if value == "" {
		return "-"
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return humanize.RelTime(ts, now, "ago", "from now")
}
