// Package cli is the interactive console front end: a readline prompt, a
// status line while the agent works, and markdown-rendered answers.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/codefionn/driveagent/internal/orchestrator/loop"
)

const defaultWidth = 80

var (
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

// Renderer writes agent output to a console.
type Renderer struct {
	out   io.Writer
	width int
	// tty enables the in-place status line.
	tty bool
	md  *glamour.TermRenderer

	statusShown bool
}

// NewRenderer sizes itself to out when out is a terminal; otherwise it wraps
// at 80 columns and renders markdown without colors.
func NewRenderer(out io.Writer) *Renderer {
	r := &Renderer{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			r.tty = true
			if w, _, err := term.GetSize(fd); err == nil && w > 0 {
				r.width = w
			}
		}
	}

	style := glamour.WithStandardStyle("notty")
	if r.tty {
		style = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(r.wrapWidth()),
		glamour.WithPreservedNewLines(),
	)
	if err == nil {
		r.md = md
	}
	return r
}

func (r *Renderer) wrapWidth() int {
	if r.width > 4 {
		return r.width - 4
	}
	return r.width
}

// Banner prints the session header.
func (r *Renderer) Banner(model string) {
	fmt.Fprintln(r.out, bannerStyle.Render("driveagent")+" "+summaryStyle.Render("model "+model))
	fmt.Fprintln(r.out, summaryStyle.Render("Ask about your Drive files. /model <name> switches models, /quit exits."))
	fmt.Fprintln(r.out)
}

// Status shows msg as the current activity. On a terminal the line is
// rewritten in place; elsewhere each status gets its own line.
func (r *Renderer) Status(msg string) {
	if msg == "" {
		msg = "Thinking..."
	}
	line := truncate.StringWithTail(msg, uint(r.wrapWidth()), "...")
	if r.tty {
		fmt.Fprint(r.out, "\r\033[K"+statusStyle.Render(line))
		r.statusShown = true
		return
	}
	fmt.Fprintln(r.out, statusStyle.Render(line))
}

// ClearStatus erases a pending status line.
func (r *Renderer) ClearStatus() {
	if r.statusShown {
		fmt.Fprint(r.out, "\r\033[K")
		r.statusShown = false
	}
}

// Answer renders text as markdown.
func (r *Renderer) Answer(text string) {
	r.ClearStatus()
	text = strings.TrimSpace(text)
	if text == "" {
		text = "_(empty answer)_"
	}
	if r.md != nil {
		if out, err := r.md.Render(text); err == nil {
			fmt.Fprint(r.out, out)
			return
		}
	}
	fmt.Fprintln(r.out, wordwrap.String(text, r.wrapWidth()))
}

// Summary prints the token and tool counts of a finished run.
func (r *Renderer) Summary(res *loop.RunResult) {
	if res == nil {
		return
	}
	fmt.Fprintln(r.out, summaryStyle.Render(FormatUsage(res.Usage)))
	fmt.Fprintln(r.out)
}

// Error prints a failed run's message.
func (r *Renderer) Error(msg string) {
	r.ClearStatus()
	fmt.Fprintln(r.out, errorStyle.Render("Error: "+msg))
	fmt.Fprintln(r.out)
}

// Info prints a plain note.
func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, summaryStyle.Render(msg))
}

// FormatUsage renders u as a one-line summary.
func FormatUsage(u loop.Usage) string {
	s := fmt.Sprintf("%s, %s, %d in / %d out tokens",
		plural(u.Turns, "turn"), plural(u.ToolCalls, "tool call"), u.InputTokens, u.OutputTokens)
	if u.CacheReadTokens > 0 || u.CacheCreationTokens > 0 {
		s += fmt.Sprintf(", cache %d read / %d written", u.CacheReadTokens, u.CacheCreationTokens)
	}
	return s
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
