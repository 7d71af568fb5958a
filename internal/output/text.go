// Package output renders trace list and detail states as plain text for terminals and MCP clients.
package output

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"spanscope/internal/viewmodel"
	"spanscope/internal/visualize"
)

const (
	defaultBarWidth = 40
	maxNameWidth    = 36
)

// Renderer writes view model states as text. Color escapes are only emitted when enabled.
type Renderer struct {
	barWidth int
	errText  *color.Color
	okText   *color.Color
	dimText  *color.Color
	heading  *color.Color
}

// NewRenderer creates a renderer. Pass colorize=false for anything that is not a terminal.
func NewRenderer(colorize bool) *Renderer {
	r := &Renderer{
		barWidth: defaultBarWidth,
		errText:  color.New(color.FgRed, color.Bold),
		okText:   color.New(color.FgGreen),
		dimText:  color.New(color.Faint),
		heading:  color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.errText, r.okText, r.dimText, r.heading} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// WithBarWidth sets the number of character cells used for the waterfall timeline.
func (r *Renderer) WithBarWidth(cells int) *Renderer {
	if cells > 0 {
		r.barWidth = cells
	}
	return r
}

// TraceList writes the recent-traces table.
func (r *Renderer) TraceList(w io.Writer, state viewmodel.ListState) error {
	if !state.Loaded {
		if state.Err != nil {
			_, err := fmt.Fprintf(w, "%s %s\n", r.errText.Sprint("Failed to load traces:"), state.Err)
			return err
		}
		_, err := fmt.Fprintln(w, "Loading traces...")
		return err
	}

	if len(state.Traces) == 0 {
		if _, err := fmt.Fprintln(w, "No traces found."); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Trace", "Root Service", "Duration", "Status", "Services"})
		table.SetAutoWrapText(false)
		table.SetBorder(false)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)

		for _, row := range viewmodel.BuildRows(state.Traces) {
			names := make([]string, 0, len(row.Services))
			for _, s := range row.Services {
				names = append(names, s.Name)
			}
			table.Append([]string{
				row.ShortID,
				row.RootService,
				row.Duration,
				r.status(row.HasError),
				strings.Join(names, ", "),
			})
		}
		table.Render()
	}

	if state.Err != nil {
		if _, err := fmt.Fprintf(w, "%s %s\n", r.errText.Sprint("Last refresh failed:"), state.Err); err != nil {
			return err
		}
	}
	if !state.UpdatedAt.IsZero() {
		if _, err := fmt.Fprintln(w, r.dimText.Sprintf("Updated %s", state.UpdatedAt.Format("15:04:05"))); err != nil {
			return err
		}
	}
	return nil
}

// TraceDetail writes the summary, waterfall, legend and error panel of a loaded trace, or a
// one-line explanation for every other status.
func (r *Renderer) TraceDetail(w io.Writer, state viewmodel.DetailState) error {
	var err error
	switch state.Status {
	case viewmodel.StatusLoading:
		_, err = fmt.Fprintln(w, "Loading trace...")
	case viewmodel.StatusSuperseded:
		_, err = fmt.Fprintf(w, "Load of trace %s was replaced by a newer request.\n", state.TraceID)
	case viewmodel.StatusNotFound:
		_, err = fmt.Fprintf(w, "%s %s\n", r.errText.Sprint("Trace not found:"), state.TraceID)
	case viewmodel.StatusFailed:
		_, err = fmt.Fprintf(w, "%s %s: %s\n", r.errText.Sprint("Failed to fetch trace"), state.TraceID, state.ErrorText())
	case viewmodel.StatusNoData:
		_, err = fmt.Fprintf(w, "%s\nTrace ID: %s\nNo span data available.\n", r.heading.Sprint("Trace Details"), state.TraceID)
	case viewmodel.StatusReady:
		if state.Detail == nil {
			return fmt.Errorf("trace %s: ready without detail", state.TraceID)
		}
		err = r.detail(w, state.Detail)
	default:
		_, err = fmt.Fprintf(w, "Nothing loaded.\n")
	}
	return err
}

func (r *Renderer) detail(w io.Writer, d *viewmodel.TraceDetail) error {
	var b strings.Builder

	sum := d.Summary
	fmt.Fprintln(&b, r.heading.Sprint("Trace Details"))
	fmt.Fprintf(&b, "Trace ID:     %s\n", d.TraceID)
	fmt.Fprintf(&b, "Root Service: %s\n", sum.RootService)
	fmt.Fprintf(&b, "Duration:     %s\n", visualize.FormatDuration(sum.TotalDuration))
	fmt.Fprintf(&b, "Spans:        %d\n", sum.SpanCount)
	fmt.Fprintf(&b, "Status:       %s\n\n", r.status(sum.HasError))

	fmt.Fprintln(&b, r.heading.Sprint("Waterfall"))
	nameWidth := 0
	labels := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		labels[i] = truncate(strings.Repeat("  ", row.Depth)+row.Name, maxNameWidth)
		if n := len([]rune(labels[i])); n > nameWidth {
			nameWidth = n
		}
	}
	for i, row := range d.Rows {
		line := fmt.Sprintf("%-*s |%s| %10s  %s",
			nameWidth, labels[i], Bar(row.Left, row.Width, r.barWidth), row.DurationText, row.ServiceName)
		if row.IsError {
			line = r.errText.Sprint(line)
		}
		fmt.Fprintln(&b, line)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, r.heading.Sprint("Services"))
	for _, entry := range d.Legend {
		fmt.Fprintf(&b, "  %s %s (%d)\n", entry.Color, entry.Service, entry.Count)
	}

	fmt.Fprintln(&b)
	if len(d.Errors) == 0 {
		fmt.Fprintln(&b, r.heading.Sprint("Errors"))
		fmt.Fprintln(&b, r.okText.Sprint("  No errors detected"))
	} else {
		fmt.Fprintln(&b, r.heading.Sprintf("Errors (%d)", len(d.Errors)))
		for _, s := range d.Errors {
			fmt.Fprintf(&b, "  %s  %s  %s\n", r.errText.Sprint(s.Name), s.ServiceName, s.StatusCode)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Renderer) status(hasError bool) string {
	if hasError {
		return r.errText.Sprint("ERROR")
	}
	return r.okText.Sprint("OK")
}

// Bar draws a span as a run of '#' inside a track of cells spaces. Every span gets at least
// one cell so instantaneous spans stay visible.
func Bar(left, width float64, cells int) string {
	if cells <= 0 {
		return ""
	}
	start := int(math.Round(left * float64(cells)))
	length := int(math.Round(width * float64(cells)))
	if length < 1 {
		length = 1
	}
	if start > cells-1 {
		start = cells - 1
	}
	if start < 0 {
		start = 0
	}
	if start+length > cells {
		length = cells - start
	}
	return strings.Repeat(" ", start) + strings.Repeat("#", length) + strings.Repeat(" ", cells-start-length)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "~"
}
