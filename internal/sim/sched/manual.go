package sched

import "time"

// Manual is a deterministic scheduler driven by Advance. It is not safe for
// concurrent use.
type Manual struct {
	now   time.Duration
	seq   uint64
	tasks []*manualTask
}

type manualTask struct {
	at        time.Duration
	every     time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

func (t *manualTask) Cancel() { t.cancelled = true }

func NewManual() *Manual { return &Manual{} }

// Now is the virtual time elapsed since construction.
func (m *Manual) Now() time.Duration { return m.now }

func (m *Manual) Every(d time.Duration, fn func()) Task {
	if d <= 0 {
		d = time.Millisecond
	}
	return m.add(d, d, fn)
}

func (m *Manual) After(d time.Duration, fn func()) Task {
	if d < 0 {
		d = 0
	}
	return m.add(d, 0, fn)
}

func (m *Manual) add(delay, every time.Duration, fn func()) *manualTask {
	m.seq++
	t := &manualTask{at: m.now + delay, every: every, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Pending counts tasks that have not been cancelled or exhausted.
func (m *Manual) Pending() int {
	n := 0
	for _, t := range m.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, running every task that falls due
// in time order. Ties run in registration order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	for {
		t := m.next(target)
		if t == nil {
			break
		}
		m.now = t.at
		if t.every > 0 {
			t.at += t.every
		} else {
			t.cancelled = true
		}
		t.fn()
	}
	m.now = target
	m.compact()
}

func (m *Manual) next(limit time.Duration) *manualTask {
	var best *manualTask
	for _, t := range m.tasks {
		if t.cancelled || t.at > limit {
			continue
		}
		if best == nil || t.at < best.at || (t.at == best.at && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compact() {
	kept := m.tasks[:0]
	for _, t := range m.tasks {
		if !t.cancelled {
			kept = append(kept, t)
		}
	}
	for i := len(kept); i < len(m.tasks); i++ {
		m.tasks[i] = nil
	}
	m.tasks = kept
}
