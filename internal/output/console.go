// Package output renders benchmark progress and results.
package output

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/zkbench/internal/bench"
	"github.com/wesleyorama2/zkbench/internal/coord"
)

const clearLine = "\r\033[2K"

// RunInfo describes the run for the header.
type RunInfo struct {
	Address  string
	Root     string
	Mode     string
	Sessions string
	Workers  int
	Batch    int
	Duration time.Duration
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer   io.Writer
	NoColor  bool
	Quiet    bool
	ForceTTY bool
}

// Console writes the human-readable view of a run.
type Console struct {
	w       io.Writer
	colors  *ColorScheme
	noColor bool
	isTTY   bool
	quiet   bool

	progressShown bool
}

// NewConsole creates a console writer. Colours are used only on a terminal.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY || isTerminal(cfg.Writer)
	noColor := cfg.NoColor || !isTTY

	colors := DefaultColorScheme()
	if noColor {
		colors = NoColorScheme()
	}

	return &Console{
		w:       cfg.Writer,
		colors:  colors,
		noColor: noColor,
		isTTY:   isTTY,
		quiet:   cfg.Quiet,
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run parameters.
func (c *Console) PrintHeader(info RunInfo) {
	if c.quiet {
		return
	}
	fmt.Fprintln(c.w, c.colors.Title.Sprint("zkbench"))
	c.field("Address", info.Address)
	c.field("Root", info.Root)
	c.field("Mode", info.Mode)
	c.field("Sessions", info.Sessions)
	c.field("Workers", fmt.Sprintf("%d", info.Workers))
	if info.Batch > 1 {
		c.field("Batch", fmt.Sprintf("%d", info.Batch))
	}
	c.field("Duration", info.Duration.String())
	fmt.Fprintln(c.w)
}

// PrintProgress prints one progress line. On a terminal the line is
// rewritten in place.
func (c *Console) PrintProgress(stats bench.RunStats) {
	if c.quiet {
		return
	}

	var line string
	switch stats.Phase {
	case bench.PhaseRunning:
		elapsed := stats.Elapsed
		if elapsed > stats.Duration {
			elapsed = stats.Duration
		}
		line = fmt.Sprintf("%s %s/%s  workers %d/%d  creates %s",
			progressBar(elapsed, stats.Duration, 20),
			formatDuration(elapsed),
			formatDuration(stats.Duration),
			stats.ActiveWorkers, stats.Workers,
			formatNumber(stats.Creates))
	case bench.PhaseInit, bench.PhaseDone:
		return
	default:
		line = string(stats.Phase) + "..."
	}

	if c.isTTY {
		fmt.Fprint(c.w, clearLine+line)
		c.progressShown = true
		return
	}
	fmt.Fprintln(c.w, line)
}

// PrintSummary prints the final count and throughput.
func (c *Console) PrintSummary(res *bench.Result) {
	c.endProgress()
	if res == nil {
		fmt.Fprintln(c.w, "No results available")
		return
	}

	if !c.quiet {
		fmt.Fprintf(c.w, "%s run %s\n", SuccessIcon(c.noColor), c.colors.Dim.Sprint(res.RunID))
		c.field("Creates acknowledged", formatNumber(res.Creates))
		if res.LastSeq > 0 || res.FirstSeq > 0 {
			c.field("Sequence range", fmt.Sprintf("%d..%d (%d gaps)", res.FirstSeq, res.LastSeq, res.Gaps))
		}
	}
	fmt.Fprintf(c.w, "Total znodes added: %s\n", c.colors.Highlight.Sprint(res.Count))
	fmt.Fprintf(c.w, "Operations per second: %s\n", c.colors.Highlight.Sprintf("%.2f", res.Throughput))
}

// PrintError prints a failed run: the cause and, when known, the operation
// and path that triggered it.
func (c *Console) PrintError(err error) {
	c.endProgress()
	fmt.Fprintf(c.w, "%s %s %v\n", ErrorIcon(c.noColor), c.colors.Error.Sprint("Error:"), err)

	var opErr *coord.OpError
	if errors.As(err, &opErr) {
		c.field("Operation", opErr.Op)
		c.field("Path", opErr.Path)
	}
}

func (c *Console) endProgress() {
	if c.progressShown {
		fmt.Fprintln(c.w)
		c.progressShown = false
	}
}

func (c *Console) field(label, value string) {
	fmt.Fprintf(c.w, "  %s %s\n", c.colors.Label.Sprintf("%-21s", label+":"), c.colors.Value.Sprint(value))
}

func progressBar(elapsed, total time.Duration, width int) string {
	filled := 0
	if total > 0 {
		filled = int(float64(width) * float64(elapsed) / float64(total))
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
