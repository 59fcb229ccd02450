// Package notify implements the "new items" notification countdown.
//
// The Timer never starts goroutines or real timers. Transitions that need a
// countdown return an Arm; the caller schedules a wake-up after Arm.After and
// hands Arm.Generation back to Expire. Every transition bumps the generation,
// so wake-ups scheduled before a pause, restart or dismiss are ignored.
package notify

import "time"

type Phase int

const (
	Hidden Phase = iota
	Running
	Frozen
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "shown-running"
	case Frozen:
		return "shown-frozen"
	default:
		return "hidden"
	}
}

type Arm struct {
	Generation int
	After      time.Duration
}

// State is a read-only view of the timer for renderers.
type State struct {
	Phase          Phase
	Pending        int
	Remaining      time.Duration
	UserInteracted bool
	PageVisible    bool
}

func (s State) Shown() bool { return s.Phase != Hidden }

type Timer struct {
	duration   time.Duration
	phase      Phase
	pending    int
	remaining  time.Duration
	runStart   time.Time
	interacted bool
	visible    bool
	generation int
}

func New(duration time.Duration) *Timer {
	return &Timer{duration: duration, visible: true}
}

func (t *Timer) Duration() time.Duration { return t.duration }
func (t *Timer) Generation() int         { return t.generation }

// Accumulate records n newly observed items. While the notification is shown
// and the user has not interacted, counts add up; otherwise they replace the
// pending count. The countdown restarts at full duration either way.
func (t *Timer) Accumulate(n int, now time.Time) (Arm, bool) {
	if n <= 0 {
		return Arm{}, false
	}
	if t.phase != Hidden && !t.interacted {
		t.pending += n
	} else {
		t.pending = n
	}
	t.generation++
	t.remaining = t.duration
	if !t.visible {
		t.phase = Frozen
		return Arm{}, false
	}
	t.phase = Running
	t.runStart = now
	return Arm{Generation: t.generation, After: t.duration}, true
}

// Interact marks that the user engaged with the page.
func (t *Timer) Interact() {
	t.interacted = true
}

// SetVisible applies a page visibility change. Going to the background
// freezes a running countdown with its exact remainder; coming back resumes
// from that remainder.
func (t *Timer) SetVisible(visible bool, now time.Time) (Arm, bool) {
	if visible == t.visible {
		return Arm{}, false
	}
	t.visible = visible
	t.interacted = false

	if !visible {
		if t.phase == Running {
			t.remaining = t.remainingAt(now)
			t.phase = Frozen
			t.generation++
		}
		return Arm{}, false
	}

	if t.phase != Frozen {
		return Arm{}, false
	}
	if t.remaining <= 0 {
		t.hide()
		return Arm{}, false
	}
	t.phase = Running
	t.runStart = now
	t.generation++
	return Arm{Generation: t.generation, After: t.remaining}, true
}

// Expire handles a scheduled wake-up and reports whether it hid the
// notification. Stale generations are ignored.
func (t *Timer) Expire(generation int) bool {
	if t.phase != Running || generation != t.generation {
		return false
	}
	t.hide()
	return true
}

// Dismiss hides the notification from any state.
func (t *Timer) Dismiss() bool {
	wasShown := t.phase != Hidden
	t.hide()
	return wasShown
}

func (t *Timer) State(now time.Time) State {
	s := State{
		Phase:          t.phase,
		Pending:        t.pending,
		UserInteracted: t.interacted,
		PageVisible:    t.visible,
	}
	switch t.phase {
	case Running:
		s.Remaining = t.remainingAt(now)
	case Frozen:
		s.Remaining = t.remaining
	}
	return s
}

func (t *Timer) remainingAt(now time.Time) time.Duration {
	left := t.remaining - now.Sub(t.runStart)
	if left < 0 {
		return 0
	}
	return left
}

func (t *Timer) hide() {
	t.phase = Hidden
	t.pending = 0
	t.remaining = 0
	t.interacted = false
	t.generation++
}
