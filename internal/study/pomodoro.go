package study

import (
	"sync"
	"time"

	"github.com/dukerupert/tareas/internal/websocket"
)

// Broadcaster pushes realtime messages to a user's clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

type PomodoroConfig struct {
	Work       time.Duration
	ShortBreak time.Duration
	LongBreak  time.Duration
	// LongEvery is how many work sessions earn a long break.
	LongEvery int
	Tick      time.Duration
}

func DefaultPomodoroConfig() PomodoroConfig {
	return PomodoroConfig{
		Work:       25 * time.Minute,
		ShortBreak: 5 * time.Minute,
		LongBreak:  15 * time.Minute,
		LongEvery:  4,
		Tick:       time.Second,
	}
}

// PomodoroState is a snapshot of one user's timer.
type PomodoroState struct {
	Active        bool `json:"isActive"`
	Paused        bool `json:"isPaused"`
	Break         bool `json:"isBreak"`
	TimeRemaining int  `json:"timeRemaining"`
	SessionCount  int  `json:"sessionCount"`
}

// Pomodoro is one user's work/break timer. While running it is driven by
// its own ticker goroutine.
type Pomodoro struct {
	mu        sync.Mutex
	cfg       PomodoroConfig
	active    bool
	paused    bool
	onBreak   bool
	remaining time.Duration
	sessions  int
	halt      chan struct{}
	onChange  func(PomodoroState)
}

func NewPomodoro(cfg PomodoroConfig, onChange func(PomodoroState)) *Pomodoro {
	if onChange == nil {
		onChange = func(PomodoroState) {}
	}
	return &Pomodoro{cfg: cfg, remaining: cfg.Work, onChange: onChange}
}

func (p *Pomodoro) State() PomodoroState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot()
}

func (p *Pomodoro) snapshot() PomodoroState {
	return PomodoroState{
		Active:        p.active,
		Paused:        p.paused,
		Break:         p.onBreak,
		TimeRemaining: int(p.remaining.Round(time.Second) / time.Second),
		SessionCount:  p.sessions,
	}
}

// Start begins a work session, or resumes a paused one. A running timer is
// left alone.
func (p *Pomodoro) Start() PomodoroState {
	p.mu.Lock()
	if p.active && !p.paused {
		st := p.snapshot()
		p.mu.Unlock()
		return st
	}
	if !p.active {
		p.active = true
		p.onBreak = false
		p.remaining = p.cfg.Work
	}
	p.paused = false
	p.runLocked()
	return p.changed()
}

// Toggle pauses a running timer or resumes a paused one.
func (p *Pomodoro) Toggle() PomodoroState {
	p.mu.Lock()
	switch {
	case !p.active:
		st := p.snapshot()
		p.mu.Unlock()
		return st
	case p.paused:
		p.paused = false
		p.runLocked()
	default:
		p.haltLocked()
		p.paused = true
	}
	return p.changed()
}

// Stop ends the current session and rewinds to a full work period. The
// completed session count is kept.
func (p *Pomodoro) Stop() PomodoroState {
	p.mu.Lock()
	p.stopLocked()
	return p.changed()
}

// Reset stops the timer and clears the session count.
func (p *Pomodoro) Reset() PomodoroState {
	p.mu.Lock()
	p.stopLocked()
	p.sessions = 0
	return p.changed()
}

// changed snapshots, unlocks and notifies.
func (p *Pomodoro) changed() PomodoroState {
	st := p.snapshot()
	p.mu.Unlock()
	p.onChange(st)
	return st
}

func (p *Pomodoro) stopLocked() {
	p.haltLocked()
	p.active = false
	p.paused = false
	p.onBreak = false
	p.remaining = p.cfg.Work
}

func (p *Pomodoro) runLocked() {
	if p.halt != nil {
		return
	}
	halt := make(chan struct{})
	p.halt = halt
	go func() {
		t := time.NewTicker(p.cfg.Tick)
		defer t.Stop()
		for {
			select {
			case <-halt:
				return
			case <-t.C:
				p.tick(halt)
			}
		}
	}()
}

func (p *Pomodoro) haltLocked() {
	if p.halt != nil {
		close(p.halt)
		p.halt = nil
	}
}

// tick advances the timer by one tick. halt identifies the goroutine so a
// tick racing with Stop is ignored.
func (p *Pomodoro) tick(halt chan struct{}) {
	p.mu.Lock()
	if halt == nil || p.halt != halt {
		p.mu.Unlock()
		return
	}
	p.remaining -= p.cfg.Tick
	if p.remaining > 0 {
		p.mu.Unlock()
		return
	}

	if !p.onBreak {
		p.sessions++
		p.onBreak = true
		p.remaining = p.cfg.ShortBreak
		if p.cfg.LongEvery > 0 && p.sessions%p.cfg.LongEvery == 0 {
			p.remaining = p.cfg.LongBreak
		}
	} else {
		p.stopLocked()
	}
	p.changed()
}

// Pomodoros holds one timer per user and broadcasts their changes.
type Pomodoros struct {
	mu     sync.Mutex
	cfg    PomodoroConfig
	hub    Broadcaster
	timers map[int64]*Pomodoro
}

func NewPomodoros(cfg PomodoroConfig, hub Broadcaster) *Pomodoros {
	return &Pomodoros{cfg: cfg, hub: hub, timers: make(map[int64]*Pomodoro)}
}

// For returns the user's timer, creating it on first use.
func (r *Pomodoros) For(userID int64) *Pomodoro {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.timers[userID]
	if !ok {
		p = NewPomodoro(r.cfg, func(st PomodoroState) {
			if r.hub == nil {
				return
			}
			r.hub.Broadcast(websocket.NewMessage("pomodoro", "changed", 0, map[string]any{"state": st}).To(userID))
		})
		r.timers[userID] = p
	}
	return p
}

// StopAll halts every running timer.
func (r *Pomodoros) StopAll() {
	r.mu.Lock()
	timers := make([]*Pomodoro, 0, len(r.timers))
	for _, p := range r.timers {
		timers = append(timers, p)
	}
	r.mu.Unlock()

	for _, p := range timers {
		p.mu.Lock()
		p.haltLocked()
		p.mu.Unlock()
	}
}
