package engine

import (
	"sync"
	"time"

	"capeline/internal/domain"
)

type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseProcessing  Phase = "PROCESSING"
	PhaseReportReady Phase = "REPORT_READY"
	PhaseError       Phase = "ERROR"
)

// Progress is the observable trace of a slot's day transition.
type Progress struct {
	Slot      string              `json:"slot"`
	Phase     Phase               `json:"phase"`
	Step      int                 `json:"step"`
	Steps     int                 `json:"steps"`
	Lines     []string            `json:"lines"`
	Error     string              `json:"error,omitempty"`
	Warning   string              `json:"warning,omitempty"`
	Report    *domain.DailyReport `json:"report,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type slotState struct {
	progress  Progress
	cancelled bool
	subs      map[chan Progress]struct{}
}

// Runtime holds per-slot transition state: the exclusivity flag, the progress trace,
// the cancel request and progress subscribers.
type Runtime struct {
	mu    sync.Mutex
	slots map[string]*slotState
	now   func() time.Time
}

func NewRuntime() *Runtime {
	return &Runtime{slots: map[string]*slotState{}, now: time.Now}
}

func (r *Runtime) slot(name string) *slotState {
	s, ok := r.slots[name]
	if !ok {
		s = &slotState{
			progress: Progress{Slot: name, Phase: PhaseIdle, Lines: []string{}},
			subs:     map[chan Progress]struct{}{},
		}
		r.slots[name] = s
	}
	return s
}

// begin claims the slot for a transition.
func (r *Runtime) begin(slot string, steps int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	if s.progress.Phase == PhaseProcessing {
		return ErrTransitionInProgress
	}
	s.cancelled = false
	s.progress = Progress{Slot: slot, Phase: PhaseProcessing, Steps: steps, Lines: []string{}}
	r.publish(s)
	return nil
}

// step records a progress line and moves the step counter.
func (r *Runtime) step(slot string, step int, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	if step > s.progress.Step {
		s.progress.Step = step
	}
	s.progress.Lines = append(s.progress.Lines, line)
	r.publish(s)
}

func (r *Runtime) finish(slot string, report domain.DailyReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	s.progress.Phase = PhaseReportReady
	s.progress.Step = s.progress.Steps
	s.progress.Report = &report
	r.publish(s)
}

// fail clears the trace and keeps one message for the user to acknowledge.
func (r *Runtime) fail(slot string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	s.progress = Progress{Slot: slot, Phase: PhaseError, Lines: []string{}, Error: err.Error()}
	r.publish(s)
}

func (r *Runtime) abandon(slot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	s.progress = Progress{Slot: slot, Phase: PhaseIdle, Lines: []string{}, Warning: ErrTransitionCancelled.Error()}
	s.cancelled = false
	r.publish(s)
}

// Cancel asks the running transition not to commit. Outstanding generation calls are
// left to finish. Returns false when nothing is processing.
func (r *Runtime) Cancel(slot string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	if s.progress.Phase != PhaseProcessing {
		return false
	}
	s.cancelled = true
	s.progress.Lines = append(s.progress.Lines, "Cancel requested")
	r.publish(s)
	return true
}

func (r *Runtime) cancelRequested(slot string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot(slot).cancelled
}

// Busy reports whether a transition is processing for the slot.
func (r *Runtime) Busy(slot string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slot(slot).progress.Phase == PhaseProcessing
}

// Progress returns a copy of the slot's current trace.
func (r *Runtime) Progress(slot string) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.slot(slot).progress)
}

// Dismiss returns a finished or failed slot to IDLE.
func (r *Runtime) Dismiss(slot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	if s.progress.Phase == PhaseProcessing {
		return
	}
	s.progress = Progress{Slot: slot, Phase: PhaseIdle, Lines: []string{}}
	r.publish(s)
}

// Subscribe streams progress snapshots for a slot, starting with the current one.
// Slow subscribers miss intermediate snapshots rather than blocking the transition.
func (r *Runtime) Subscribe(slot string) (<-chan Progress, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(slot)
	ch := make(chan Progress, 16)
	s.subs[ch] = struct{}{}
	ch <- snapshot(s.progress)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(s.subs, ch)
			close(ch)
		})
	}
}

func (r *Runtime) publish(s *slotState) {
	if r.now != nil {
		s.progress.UpdatedAt = r.now().UTC()
	}
	snap := snapshot(s.progress)
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func snapshot(p Progress) Progress {
	lines := make([]string, len(p.Lines))
	copy(lines, p.Lines)
	p.Lines = lines
	if p.Report != nil {
		rep := *p.Report
		p.Report = &rep
	}
	return p
}
