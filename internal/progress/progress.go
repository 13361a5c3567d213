// Package progress renders a progress bar for long-running CLI steps. A nil
// *Bar is valid and does nothing.
package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

type Bar struct {
	bar *progressbar.ProgressBar
	max int
}

func New(description string) *Bar {
	return NewWithWriter(os.Stderr, description)
}

func NewWithWriter(w io.Writer, description string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions(0,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetPredictTime(false),
		),
	}
}

// AddMax grows the total by n steps.
func (b *Bar) AddMax(n int) {
	if b == nil {
		return
	}
	b.max += n
	b.bar.ChangeMax(b.max)
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
