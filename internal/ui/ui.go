package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/felixgeelhaar/recall/internal/session"
)

// UI receives progress from the capture loop.
type UI interface {
	UpdateStatus(status string)
	UpdateIteration(iter int)
	AddRecord(rec session.Record)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)   {}
func (s SilentUI) UpdateIteration(iter int)     {}
func (s SilentUI) AddRecord(rec session.Record) {}
func (s SilentUI) Log(msg string)               {}

// Plain prints each new record's summary, the way a terminal session
// shows progress without the interactive view.
type Plain struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPlain(out io.Writer) *Plain {
	return &Plain{out: out}
}

func (p *Plain) UpdateStatus(status string) {
	p.println(status)
}

func (p *Plain) UpdateIteration(iter int) {}

func (p *Plain) AddRecord(rec session.Record) {
	p.println(rec.Summary)
}

func (p *Plain) Log(msg string) {}

func (p *Plain) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}
