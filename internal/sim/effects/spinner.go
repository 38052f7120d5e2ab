package effects

import (
	"math/rand/v2"
	"time"

	"kartetris.ai/internal/sim/sched"
)

// Spinner is the slot machine shown on a special pickup. It settles after a
// fixed delay on a uniformly chosen catalog entry. One spin runs at a time.
type Spinner struct {
	reg      *Registry
	sched    sched.Scheduler
	rng      *rand.Rand
	delay    time.Duration
	spinning bool
}

func NewSpinner(reg *Registry, s sched.Scheduler, rng *rand.Rand, delay time.Duration) *Spinner {
	return &Spinner{reg: reg, sched: s, rng: rng, delay: delay}
}

func (s *Spinner) Spinning() bool { return s.spinning }

// Spin starts a spin and reports false if one is already running or the
// catalog is empty.
func (s *Spinner) Spin(onSelected func(Effect)) bool {
	cat := s.reg.Catalog()
	if s.spinning || len(cat) == 0 {
		return false
	}
	s.spinning = true
	s.sched.After(s.delay, func() {
		s.spinning = false
		e := cat[s.rng.IntN(len(cat))]
		if onSelected != nil {
			onSelected(e)
		}
	})
	return true
}
