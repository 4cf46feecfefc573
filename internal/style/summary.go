package style

import (
	"fmt"
	"strings"
	"time"

	"github.com/rescp17/noftp/internal/util"
)

const (
	fileColumnWidth   = 40
	sizeColumnWidth   = 10
	chunksColumnWidth = 7
	timeColumnWidth   = 9
	rateColumnWidth   = 12
	stateColumnWidth  = 8
)

// SummaryRow is one line of the transfer summary.
type SummaryRow struct {
	File    string
	Size    int64
	Chunks  string
	Elapsed time.Duration
	Rate    float64 // bytes per second
	Err     error
}

// RenderSummary draws a bordered table of per-file outcomes under title.
func RenderSummary(title string, rows []SummaryRow) string {
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(
		util.PadRight("FILE", fileColumnWidth) + " " +
			util.PadLeft("SIZE", sizeColumnWidth) + " " +
			util.PadLeft("CHUNKS", chunksColumnWidth) + " " +
			util.PadLeft("TIME", timeColumnWidth) + " " +
			util.PadLeft("RATE", rateColumnWidth) + " " +
			util.PadRight("STATE", stateColumnWidth)))

	var failed int
	var total int64
	for _, row := range rows {
		total += row.Size
		state := SuccessStyle.Render(util.PadRight("done", stateColumnWidth))
		if row.Err != nil {
			failed++
			state = ErrorStyle.Render(util.PadRight("failed", stateColumnWidth))
		}
		fmt.Fprintf(&b, "\n%s %s %s %s %s %s",
			util.PadRight(row.File, fileColumnWidth),
			util.PadLeft(util.FormatSize(row.Size), sizeColumnWidth),
			util.PadLeft(row.Chunks, chunksColumnWidth),
			util.PadLeft(formatElapsed(row.Elapsed), timeColumnWidth),
			util.PadLeft(formatRate(row.Rate), rateColumnWidth),
			state)
		if row.Err != nil {
			b.WriteString("\n  " + ErrorStyle.Render(row.Err.Error()))
		}
	}

	footer := fmt.Sprintf("%d files, %s", len(rows), util.FormatSize(total))
	if failed > 0 {
		footer += ErrorStyle.Render(fmt.Sprintf(", %d failed", failed))
	}

	return TitleStyle.Render(title) + "\n" + BaseStyle.Render(b.String()) + "\n" + HelpStyle.Render(footer)
}

func formatElapsed(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func formatRate(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "-"
	}
	return util.FormatSize(int64(bytesPerSecond)) + "/s"
}
