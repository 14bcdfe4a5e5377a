package pins

import (
	"sync"
	"time"
)

// Sim is the host-side pin backend: every pin number below Count is a
// simulated register. It stands in for real GPIO hardware the same way the
// rest of this process stands in for a microcontroller.
type Sim struct {
	mu   sync.Mutex
	pins map[int]*SimPin
	n    int
}

// NewSim creates a simulation backend with pin numbers [0, count).
func NewSim(count int) *Sim {
	if count <= 0 {
		count = 64
	}
	return &Sim{pins: map[int]*SimPin{}, n: count}
}

func (s *Sim) Handle(n int) (Handle, bool) {
	if n < 0 || n >= s.n {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[n]
	if !ok {
		p = &SimPin{number: n}
		s.pins[n] = p
	}
	return p, true
}

// Pin returns the simulated pin state for inspection (tests, stats).
func (s *Sim) Pin(n int) (*SimPin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[n]
	return p, ok
}

// SimPin implements both GPIO and PWM over an in-memory register.
type SimPin struct {
	mu     sync.RWMutex
	number int

	level  bool
	out    bool
	writes int

	duty      float64
	cycleTime time.Duration
	hardPWM   bool
	pwmSet    bool
}

func (p *SimPin) Number() int  { return p.number }
func (p *SimPin) AsGPIO() GPIO { return p }
func (p *SimPin) AsPWM() PWM   { return p }

func (p *SimPin) ConfigureOutput(initial bool) error {
	p.mu.Lock()
	p.out = true
	p.level = initial
	p.writes++
	p.mu.Unlock()
	return nil
}

func (p *SimPin) Set(level bool) {
	p.mu.Lock()
	p.level = level
	p.writes++
	p.mu.Unlock()
}

func (p *SimPin) Get() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// Writes counts ConfigureOutput and Set calls; the static-output tests use
// it to prove "driven once, never changed".
func (p *SimPin) Writes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.writes
}

func (p *SimPin) Configure(cycleTime time.Duration, hard bool) error {
	p.mu.Lock()
	p.cycleTime = cycleTime
	p.hardPWM = hard
	p.mu.Unlock()
	return nil
}

func (p *SimPin) SetDuty(duty float64) {
	p.mu.Lock()
	p.duty = duty
	p.pwmSet = true
	p.writes++
	p.mu.Unlock()
}

func (p *SimPin) Duty() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.duty
}

// CycleTime reports the configured PWM period.
func (p *SimPin) CycleTime() (time.Duration, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cycleTime, p.hardPWM
}
