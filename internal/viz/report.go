package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/storage"
)

const sparkWidth = 48

// Report renders the outcome of a bake: counts, the per-frame deviation as a
// sparkline, metrics, then one line per notice.
func Report(r dynamo.Report, metrics map[string]float64, elapsed time.Duration) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render("bake report"))
	b.WriteString("\n")

	status := StatusOK.Render("ok")
	switch {
	case r.Baked == 0:
		status = StatusError.Render("nothing baked")
	case r.Baked < r.Chains:
		status = StatusWarn.Render("partial")
	}
	fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("status  "), status)
	fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("chains  "), MetricValue.Render(fmt.Sprintf("%d/%d", r.Baked, r.Chains)))
	fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("frames  "), MetricValue.Render(fmt.Sprint(r.Frames)))
	if elapsed > 0 {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("elapsed "), MetricValue.Render(elapsed.Round(time.Millisecond).String()))
	}
	if len(r.Deviation) > 1 {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render("motion  "), Sparkline(r.Deviation, min(len(r.Deviation), sparkWidth)))
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render(fmt.Sprintf("%-15s", name)), MetricValue.Render(fmt.Sprintf("%.6g", metrics[name])))
	}

	for _, line := range r.Lines() {
		b.WriteString(StatusWarn.Render("! "))
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// Runs renders stored runs as a table, newest first.
func Runs(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return Subtle.Render("no runs") + "\n"
	}
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-28s %-20s %9s %7s", "run", "time", "frames", "chains")))
	b.WriteString("\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-28s %-20s %9s %7s\n",
			Title.Render(r.ID),
			r.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d-%d", r.Start, r.End),
			fmt.Sprintf("%d/%d", r.Baked, r.Chains),
		)
	}
	return b.String()
}

// Run renders the metadata of one run.
func Run(meta *storage.RunMetadata) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(meta.ID))
	b.WriteString("\n")
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", MetricLabel.Render(fmt.Sprintf("%-12s", label)), MetricValue.Render(value))
	}
	row("scene", meta.Scene)
	row("armature", meta.Armature)
	row("frames", fmt.Sprintf("%d-%d @ %g fps", meta.Start, meta.End, meta.FPS))
	row("integrator", meta.Integrator)
	row("chains", fmt.Sprintf("%d/%d", meta.Baked, meta.Chains))
	row("bones", strings.Join(meta.Bones, ", "))
	p := meta.Params
	row("params", fmt.Sprintf("delay=%g recursion=%g strength=%g twist=%g tension=%g inertia=%g substeps=%d",
		p.Delay, p.Recursion, p.Strength, p.Twist, p.Tension, p.Inertia, p.Steps()))

	names := make([]string, 0, len(meta.Metrics))
	for name := range meta.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row(name, fmt.Sprintf("%.6g", meta.Metrics[name]))
	}
	for _, w := range meta.Warnings {
		b.WriteString(StatusWarn.Render("! ") + w + "\n")
	}
	return b.String()
}

// PlotChannel draws one key channel over the baked frames.
func PlotChannel(frames, values []float64, caption string) string {
	if len(values) == 0 {
		return Subtle.Render("no data") + "\n"
	}
	if len(frames) > 0 {
		caption = fmt.Sprintf("%s (frames %g-%g)", caption, frames[0], frames[len(frames)-1])
	}
	return asciigraph.Plot(values,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	) + "\n"
}
