package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// BatchProgress returns a callback suitable for receipt.Config.OnBatch that
// draws a progress bar on w. A new bar is started whenever a fresh
// computation begins.
func BatchProgress(w io.Writer, description string) func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		lastDone  int
		lastTotal int
		mu        sync.Mutex
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil || total != lastTotal || done < lastDone {
			bar = newBar(w, total, description)
		}
		lastDone, lastTotal = done, total

		if err := bar.Set(done); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
	}
}

func newBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]"+description+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(w); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}
