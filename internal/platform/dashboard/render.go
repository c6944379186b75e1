package dashboard

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
)

const (
	barWidth     = 40
	scatterCols  = 48
	scatterRows  = 12
	sparkWidth   = 60
	clearConsole = "\033[H\033[2J"
)

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// TextRenderer writes the latest snapshot of every dataset to a terminal.
// Each publish redraws the whole view.
type TextRenderer struct {
	mu    sync.Mutex
	w     io.Writer
	clear bool
	snaps map[Kind]Snapshot
}

// NewTextRenderer renders to w. With clear set the screen is wiped before
// each redraw.
func NewTextRenderer(w io.Writer, clear bool) *TextRenderer {
	return &TextRenderer{w: w, clear: clear, snaps: make(map[Kind]Snapshot)}
}

func (r *TextRenderer) Publish(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps[s.Dataset] = s

	var b strings.Builder
	if r.clear {
		b.WriteString(clearConsole)
	}
	for _, k := range []Kind{KindConstant, KindChanging} {
		snap, ok := r.snaps[k]
		if !ok {
			continue
		}
		writeSnapshot(&b, snap)
		b.WriteString("\n")
	}
	_, _ = io.WriteString(r.w, b.String())
}

// RenderText formats a single snapshot.
func RenderText(s Snapshot) string {
	var b strings.Builder
	writeSnapshot(&b, s)
	return b.String()
}

func writeSnapshot(b *strings.Builder, s Snapshot) {
	fmt.Fprintf(b, "=== %s (%s) [%s] ===\n", s.Dataset, s.Source, s.State)
	b.WriteString(s.Message)
	b.WriteString("\n")
	if !s.Ready() {
		if s.LastReadyAt != nil {
			fmt.Fprintf(b, "Last good data: %s\n", s.LastReadyAt.Format("2006-01-02 15:04:05"))
		}
		return
	}
	if s.Note != "" {
		b.WriteString(s.Note)
		b.WriteString("\n")
	}
	if s.Charts == nil {
		return
	}
	writeHistogram(b, s.Charts.Glucose)
	writeHistogram(b, s.Charts.HbA1c)
	writeCorrelation(b, s.Charts.Correlation)
	if s.Charts.Trend != nil {
		writeTrend(b, *s.Charts.Trend)
	}
}

func writeHistogram(b *strings.Builder, h Histogram) {
	fmt.Fprintf(b, "\n%s (%s, n=%d)\n", h.Title, h.XLabel, h.Samples)
	peak := 0
	for _, bin := range h.Bins {
		peak = max(peak, bin.Count)
	}
	for _, bin := range h.Bins {
		n := 0
		if peak > 0 {
			n = bin.Count * barWidth / peak
		}
		fmt.Fprintf(b, "%7.2f-%-7.2f |%s %d\n", float64(bin.Lo), float64(bin.Hi), strings.Repeat("#", n), bin.Count)
	}
}

func writeCorrelation(b *strings.Builder, c Correlation) {
	fmt.Fprintf(b, "\n%s (n=%d, r=%s)\n", c.Title, len(c.Points), c.Pearson)
	if c.Slope.Valid() {
		fmt.Fprintf(b, "glucose = %s + %s * hba1c\n", c.Intercept, c.Slope)
	}
	if len(c.Points) == 0 {
		return
	}
	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range c.Points {
		minX, maxX = math.Min(minX, float64(p.X)), math.Max(maxX, float64(p.X))
		minY, maxY = math.Min(minY, float64(p.Y)), math.Max(maxY, float64(p.Y))
	}
	grid := make([][]rune, scatterRows)
	for i := range grid {
		grid[i] = []rune(strings.Repeat(" ", scatterCols))
	}
	col := func(x float64) int { return scale(x, minX, maxX, scatterCols) }
	row := func(y float64) int { return scatterRows - 1 - scale(y, minY, maxY, scatterRows) }
	if c.Slope.Valid() {
		for i := 0; i < scatterCols; i++ {
			x := minX + (maxX-minX)*float64(i)/float64(scatterCols-1)
			y := float64(c.Intercept) + float64(c.Slope)*x
			if y >= minY && y <= maxY {
				grid[row(y)][i] = '.'
			}
		}
	}
	for _, p := range c.Points {
		grid[row(float64(p.Y))][col(float64(p.X))] = '*'
	}
	for i, line := range grid {
		label := "       "
		switch i {
		case 0:
			label = fmt.Sprintf("%7.1f", maxY)
		case scatterRows - 1:
			label = fmt.Sprintf("%7.1f", minY)
		}
		fmt.Fprintf(b, "%s |%s\n", label, string(line))
	}
	fmt.Fprintf(b, "        %-*.1f%.1f\n", scatterCols-3, minX, maxX)
}

// scale maps v in [lo, hi] onto [0, n).
func scale(v, lo, hi float64, n int) int {
	if hi <= lo {
		return n / 2
	}
	i := int((v - lo) / (hi - lo) * float64(n-1))
	return min(max(i, 0), n-1)
}

func writeTrend(b *strings.Builder, t Trend) {
	fmt.Fprintf(b, "\n%s (n=%d)\n", t.Title, len(t.Points))
	if len(t.Points) == 0 {
		return
	}
	values := make([]float64, len(t.Points))
	for i, p := range t.Points {
		values[i] = float64(p.Glucose)
	}
	values = downsample(values, sparkWidth)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	var line strings.Builder
	for _, v := range values {
		line.WriteRune(sparkLevels[scale(v, lo, hi, len(sparkLevels))])
	}
	fmt.Fprintf(b, "%s %s %s\n", t.Points[0].Date, line.String(), t.Points[len(t.Points)-1].Date)
	fmt.Fprintf(b, "range %.1f-%.1f mmol/L\n", lo, hi)
}

// downsample averages values into at most n buckets.
func downsample(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	out := make([]float64, n)
	for i := range out {
		start, end := i*len(values)/n, (i+1)*len(values)/n
		var sum float64
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}
