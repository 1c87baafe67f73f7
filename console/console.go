// Copyright 2026 The Luatt Authors
// SPDX-License-Identifier: Apache-2.0

package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/luatt/luatt/lib/wire"
)

// ColorMode selects when output is coloured.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode validates a colour mode name. Empty means ColorAuto.
func ParseColorMode(name string) (ColorMode, error) {
	switch mode := ColorMode(name); mode {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown color mode %q (want auto, always or never)", name)
	}
}

// LabelText marks unstructured device output.
const LabelText = "pckt>"

// labelWidth pads labels so traced lines align.
const labelWidth = 6

// labelColor is the ANSI palette entry of a label. Background-coloured
// labels use black text.
type labelColor struct {
	foreground string
	background string
}

var labelColors = map[string]labelColor{
	"ser>":    {foreground: "2"},
	"sock>":   {foreground: "3"},
	"ser<":    {foreground: "5"},
	"sock<":   {foreground: "6"},
	">sock":   {foreground: "12"},
	LabelText: {foreground: "0", background: "11"},
	"mqtt":    {foreground: "0", background: "14"},
}

const errorColor = "9"

// Options configures a Console.
type Options struct {
	// Writer receives all output. Required.
	Writer io.Writer

	// Color selects colouring. ColorAuto colours only when Writer is a
	// terminal.
	Color ColorMode

	// Traces enables Trace output. Without it Trace is a no-op.
	Traces bool
}

// Console serializes output from every goroutine of a gateway.
type Console struct {
	renderer *lipgloss.Renderer
	styles   map[string]lipgloss.Style
	errors   lipgloss.Style
	traces   bool

	mu     sync.Mutex
	writer io.Writer
}

// New returns a Console writing to options.Writer.
func New(options Options) *Console {
	profile := termenv.Ascii
	switch options.Color {
	case ColorAlways:
		profile = termenv.ANSI256
	case ColorNever:
	default:
		if isTerminal(options.Writer) {
			profile = termenv.ANSI256
		}
	}
	// The explicit SetColorProfile stops lipgloss from re-detecting the
	// profile from the environment.
	renderer := lipgloss.NewRenderer(options.Writer, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	styles := make(map[string]lipgloss.Style, len(labelColors))
	for label, color := range labelColors {
		style := renderer.NewStyle().Foreground(lipgloss.Color(color.foreground))
		if color.background != "" {
			style = style.Background(lipgloss.Color(color.background))
		}
		styles[label] = style
	}

	return &Console{
		renderer: renderer,
		styles:   styles,
		errors:   renderer.NewStyle().Foreground(lipgloss.Color(errorColor)),
		traces:   options.Traces,
		writer:   options.Writer,
	}
}

func isTerminal(writer io.Writer) bool {
	file, ok := writer.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(file.Fd()))
}

// SetWriter redirects output, returning the previous writer. The REPL
// uses it to print through its line editor.
func (c *Console) SetWriter(writer io.Writer) io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.writer
	c.writer = writer
	return previous
}

// Colored reports whether output carries ANSI colour.
func (c *Console) Colored() bool {
	return c.renderer.ColorProfile() != termenv.Ascii
}

// Reply prints an intermediate record of a request this process issued.
func (c *Console) Reply(packet wire.Packet) {
	c.line("", packet.Body())
}

// Unsolicited prints background output carrying one of this process's
// tokens.
func (c *Console) Unsolicited(packet wire.Packet) {
	c.line("", packet.Body())
}

// Text prints unstructured device output.
func (c *Console) Text(packet wire.Packet) {
	c.line(LabelText, packet.String())
}

// Trace prints one labelled traffic line when traces are enabled.
func (c *Console) Trace(label, line string) {
	if !c.traces {
		return
	}
	c.line(label, line)
}

// Event prints one labelled line regardless of the trace setting. Broker
// connection changes and inbound messages use it.
func (c *Console) Event(label, line string) {
	c.line(label, line)
}

// Printf prints an informational line.
func (c *Console) Printf(format string, args ...any) {
	c.line("", fmt.Sprintf(format, args...))
}

// Errorf prints an error line.
func (c *Console) Errorf(format string, args ...any) {
	c.line("", "Error: "+fmt.Sprintf(format, args...))
}

// line formats and writes one output line. The label, if any, is padded
// to a fixed width. Lines mentioning "error" use the error style in
// place of the label's.
func (c *Console) line(label, text string) {
	if label != "" {
		text = fmt.Sprintf("%-*s%s", labelWidth, label, text)
	}
	style, styled := c.styles[label]
	if strings.Contains(strings.ToLower(text), "error") {
		style, styled = c.errors, true
	}
	if styled && c.Colored() {
		text = style.Render(text)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	io.WriteString(c.writer, text+"\n")
}
