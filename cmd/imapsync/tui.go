package main

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	lipgloss "github.com/charmbracelet/lipgloss"

	"github.com/alexei-niemeyer/imapsync/internal/syncer"
)

type folderProgress struct {
	total int
	done  int
}

type model struct {
	worker *syncer.Syncer
	abort  func()
	// A run may only ever happen once per Syncer: the events channel is
	// closed when it returns. started/result let the caller tell an
	// in-flight run apart from one that never began.
	started  atomic.Bool
	result   chan *syncer.Outcome
	prog     map[string]folderProgress
	current  string
	totalAll int
	doneAll  int
	spinner  spinner.Model
	bar      progress.Model
	outcome  *syncer.Outcome
	finished bool
	startedAt time.Time
	// Smoothed ETA
	emaRate  float64 // msgs/sec (EMA)
	lastDone int
	lastAt   time.Time
}

type tickMsg time.Time
type outcomeMsg *syncer.Outcome

func newModel(worker *syncer.Syncer, abort func()) *model {
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	now := time.Now()
	return &model{worker: worker, abort: abort, result: make(chan *syncer.Outcome, 1), prog: map[string]folderProgress{}, spinner: s, bar: bar, startedAt: now, lastAt: now}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.startSync())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) startSync() tea.Cmd {
	// Kick off the run in background
	return func() tea.Msg {
		m.started.Store(true)
		out := m.worker.Run()
		m.result <- out
		return outcomeMsg(out)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.abort()
			return m, tea.Quit
		}
	case outcomeMsg:
		m.outcome = (*syncer.Outcome)(msg)
		m.finished = true
		m.doneAll = m.totalAll
		return m, tea.Quit
	case tickMsg:
		// update EMA of throughput on each tick
		m.updateEMARate()
		return m, tea.Batch(m.spinner.Tick, tick())
	}
	// Drain events
	for {
		select {
		case ev, ok := <-m.worker.Events():
			if !ok {
				return m, nil
			}
			switch ev.Type {
			case syncer.EventFolderStart:
				m.current = ev.Folder
			case syncer.EventFolderProgress:
				fp := m.prog[ev.Folder]
				fp.total, fp.done = ev.Total, ev.Done
				m.prog[ev.Folder] = fp
				m.recomputeTotals()
			}
		default:
			return m, nil
		}
	}
}

func (m *model) recomputeTotals() {
	total, done := 0, 0
	for _, p := range m.prog {
		total += p.total
		done += p.done
	}
	m.totalAll, m.doneAll = total, done
}

func (m *model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("imapsync")
	s := title + "\n\nPress q to quit\n\n"
	pct := 0.0
	if m.totalAll > 0 {
		pct = float64(m.doneAll) / float64(m.totalAll)
	}
	folder := m.current
	if folder == "" {
		folder = "..."
	}
	s += fmt.Sprintf("%s %s  %d/%d   %s\n", m.spinner.View(), folder, m.doneAll, m.totalAll, m.formatETA())
	s += m.bar.ViewAs(pct) + "\n\n"
	if m.finished && m.outcome != nil {
		s += lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(m.outcome.Summary()) + "\n"
	}
	return s
}

func (m *model) formatETA() string {
	if m.totalAll == 0 {
		return "ETA --"
	}
	remaining := m.totalAll - m.doneAll
	if remaining <= 0 {
		return "ETA 0s"
	}
	// Prefer smoothed rate if available; fallback to average rate
	rate := m.emaRate
	if rate <= 0.01 {
		elapsed := time.Since(m.startedAt)
		if elapsed <= 0 {
			return "ETA --"
		}
		rate = float64(m.doneAll) / elapsed.Seconds()
	}
	if rate <= 0.01 { // too low/unstable
		return "ETA --"
	}
	secs := float64(remaining) / rate
	if secs < 1 {
		return "ETA <1s"
	}
	d := time.Duration(secs) * time.Second
	if d > 99*time.Hour {
		return "ETA >99h"
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		rem := d - time.Duration(h)*time.Hour
		mrem := int(rem / time.Minute)
		return fmt.Sprintf("ETA %dh%dm", h, mrem)
	}
	if d >= time.Minute {
		mns := int(d.Minutes())
		sec := int(d.Seconds()) % 60
		return fmt.Sprintf("ETA %dm%ds", mns, sec)
	}
	return fmt.Sprintf("ETA %ds", int(d.Seconds()))
}

// updateEMARate updates the EMA of processing rate based on deltas since last tick.
func (m *model) updateEMARate() {
	now := time.Now()
	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	delta := m.doneAll - m.lastDone
	inst := float64(delta) / dt // msgs/sec
	// EMA with half-life ~3s -> alpha depends on dt
	halfLife := 3.0 // seconds
	alpha := 1 - math.Exp(-math.Ln2*dt/halfLife)
	if m.emaRate == 0 {
		m.emaRate = inst
	} else {
		m.emaRate = alpha*inst + (1-alpha)*m.emaRate
	}
	m.lastDone = m.doneAll
	m.lastAt = now
}

// runTUI runs the Bubble Tea UI and returns the outcome, or nil when the
// operator aborted before completion. abort force-closes the sessions to
// unblock in-flight I/O.
func runTUI(worker *syncer.Syncer, abort func()) *syncer.Outcome {
	m := newModel(worker, abort)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		// Fallback to non-TUI execution
		fmt.Println("TUI failed:", err)
		return m.finishWithoutUI()
	}
	return m.outcome
}

// finishWithoutUI resolves the outcome after a UI failure. A run that
// already began must be waited for, never restarted: a second Run on
// the same Syncer would close its events channel twice.
func (m *model) finishWithoutUI() *syncer.Outcome {
	if m.started.Load() {
		return <-m.result
	}
	return m.worker.Run()
}
