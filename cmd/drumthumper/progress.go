package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter shows the current connection phase with elapsed seconds on
// a single terminal line.
//
// A ProgressPrinter is single-use: Start once, Stop at least once. Stop must
// be called to release the ticker goroutine.
type ProgressPrinter struct {
	out    io.Writer
	prefix string
	phase  atomic.Value // string

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	startTime time.Time
}

// NewProgressPrinter creates a printer writing to out, starting in phase.
func NewProgressPrinter(out io.Writer, prefix, phase string) *ProgressPrinter {
	p := &ProgressPrinter{
		out:    out,
		prefix: prefix,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.phase.Store(phase)
	return p
}

// Start begins redrawing the line in a background goroutine.
func (p *ProgressPrinter) Start() {
	p.startOnce.Do(func() {
		p.startTime = time.Now()
		p.started.Store(true)
		p.print(0)
		go p.run()
	})
}

func (p *ProgressPrinter) run() {
	defer close(p.done)
	ticker := time.NewTicker(progressUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.print(int(time.Since(p.startTime).Seconds()))
		}
	}
}

func (p *ProgressPrinter) print(seconds int) {
	phase := p.Phase()
	if seconds > 0 {
		fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
	} else {
		fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
	}
}

// SetPhase updates the displayed phase. Safe from any goroutine.
func (p *ProgressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
}

// Phase returns the displayed phase.
func (p *ProgressPrinter) Phase() string {
	return p.phase.Load().(string)
}

// Stop ends the display and clears the line. Safe to call more than once and
// before Start.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		if !p.started.Load() {
			return
		}
		<-p.done
		fmt.Fprint(p.out, clearLineSequence)
	})
}
