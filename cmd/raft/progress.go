package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// stageProgress adapts the workflow's progress callback onto a progress bar.
// The bar is created on the first update, once the total is known.
type stageProgress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newStageProgress() *stageProgress {
	return &stageProgress{}
}

func (p *stageProgress) update(label string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if total <= 0 {
		// Unbounded work, e.g. crawling; show a spinner-style counter.
		if p.bar == nil {
			p.bar = getProgressBar(-1, label)
		}
		p.bar.Add(1)
		return
	}
	if p.bar == nil {
		p.bar = getProgressBar(total, label)
	}
	p.bar.Set(done)
}

func (p *stageProgress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		p.bar.Finish()
		fmt.Println()
		p.bar = nil
	}
}

// stageSpinner shows long-running remote waits, updating its description from
// the workflow's progress labels.
type stageSpinner struct {
	mu      sync.Mutex
	spinner *progressbar.ProgressBar
	started bool
	label   string
}

func newStageSpinner(label string) *stageSpinner {
	return &stageSpinner{label: label}
}

func (s *stageSpinner) update(label string, _, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.spinner = getSpinner(s.label)
		s.started = true
	}
	s.spinner.Describe(color.CyanString(label))
	s.spinner.Add(1)
}

func (s *stageSpinner) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		s.spinner.Finish()
		fmt.Println()
		s.started = false
	}
}
