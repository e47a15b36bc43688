package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
	rtruncate "github.com/muesli/reflow/truncate"

	"github.com/Dicklesworthstone/sysmoni/internal/history"
)

const na = "n/a"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func gaugeBar(pct *float64, width int) string {
	if pct == nil {
		return fmt.Sprintf("[%s] %6s", strings.Repeat(gaugeEmpty, width), na)
	}
	p := math.Max(0, math.Min(100, *pct))
	filled := min(int((p/100)*float64(width)), width)
	return fmt.Sprintf("[%s%s] %5.1f%%",
		strings.Repeat(gaugeFill, filled),
		strings.Repeat(gaugeEmpty, width-filled),
		p)
}

// sparkline renders the last width points scaled to [0, ceil].
func sparkline(pts []history.Point, width int, ceil float64) string {
	if len(pts) > width {
		pts = pts[len(pts)-width:]
	}
	if ceil <= 0 {
		for _, p := range pts {
			ceil = math.Max(ceil, p.Value)
		}
	}
	var b strings.Builder
	for _, p := range pts {
		i := 0
		if ceil > 0 {
			i = int(math.Round(p.Value / ceil * float64(len(sparkBlocks)-1)))
		}
		i = max(0, min(i, len(sparkBlocks)-1))
		b.WriteRune(sparkBlocks[i])
	}
	return b.String()
}

func fmtPct(v *float64) string {
	if v == nil {
		return na
	}
	return fmt.Sprintf("%.1f%%", *v)
}

func fmtBytes(v *uint64) string {
	if v == nil {
		return na
	}
	return humanize.IBytes(*v)
}

func fmtRate(v *float64) string {
	if v == nil {
		return na
	}
	return humanize.Bytes(uint64(math.Max(0, *v))) + "/s"
}

func fmtFloat(v *float64, unit string) string {
	if v == nil {
		return na
	}
	return fmt.Sprintf("%.0f%s", *v, unit)
}

// ratio is used/total as a percentage; nil when either side is unknown.
func ratio(used, total *uint64) *float64 {
	if used == nil || total == nil || *total == 0 {
		return nil
	}
	v := float64(*used) * 100 / float64(*total)
	return &v
}

// truncate cuts s to n terminal cells, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	return rtruncate.StringWithTail(s, uint(n), "…")
}

func fmtMs(v *float64) string {
	if v == nil {
		return na
	}
	return fmt.Sprintf("%.1f ms", *v)
}

func fmtRPM(v *uint64) string {
	if v == nil {
		return na
	}
	return fmt.Sprintf("%d rpm", *v)
}

// sumRates adds the known rates; nil only when neither is known.
func sumRates(a, b *float64) *float64 {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		return b
	case b == nil:
		return a
	}
	v := *a + *b
	return &v
}
