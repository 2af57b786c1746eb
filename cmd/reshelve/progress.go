package main

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"reshelve/internal/pipeline"
)

// newProgressSink returns a progress callback rendering one bar per active
// stage, or nil when output is not an interactive terminal so piped output
// stays clean.
func newProgressSink(out io.Writer) pipeline.ProgressFunc {
	if !interactiveWriter(out) {
		return nil
	}

	var (
		mu      sync.Mutex
		bar     *progressbar.ProgressBar
		current string
	)
	return func(stage, name string, completed, total int64) {
		mu.Lock()
		defer mu.Unlock()

		key := stage + " " + name
		if key != current {
			if bar != nil {
				_ = bar.Finish()
			}
			options := []progressbar.Option{
				progressbar.OptionSetDescription(key),
				progressbar.OptionSetWriter(out),
				progressbar.OptionClearOnFinish(),
			}
			if stage == "download" || stage == "upload" {
				options = append(options, progressbar.OptionShowBytes(true))
			}
			bar = progressbar.NewOptions64(total, options...)
			current = key
		}
		if total > 0 && bar.GetMax64() != total {
			bar.ChangeMax64(total)
		}
		_ = bar.Set64(completed)
	}
}

func interactiveWriter(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
