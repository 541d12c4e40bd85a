package train

import (
	"fmt"
	"math"
)

// Decision is the outcome of observing one epoch's loss.
type Decision int

// Decisions, in increasing order of consequence.
const (
	// Hold: the loss neither beat the best nor rose above the previous epoch.
	Hold Decision = iota
	// Improved: new best loss; the model should be saved.
	Improved
	// Worse: the loss rose above the previous epoch's; early-stop count grew.
	Worse
	// Decay: patience ran out; halve the learning rate and reload the best model.
	Decay
	// Finish: patience ran out with no decays left; stop training.
	Finish
)

// String returns the lower-case decision name.
func (d Decision) String() string {
	switch d {
	case Hold:
		return "hold"
	case Improved:
		return "improved"
	case Worse:
		return "worse"
	case Decay:
		return "decay"
	case Finish:
		return "finish"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Phase is the controller state between epochs.
type Phase int

// Phases.
const (
	Warmup Phase = iota
	Training
	Decaying
	Stopped
)

// String returns the lower-case phase name.
func (p Phase) String() string {
	switch p {
	case Warmup:
		return "warmup"
	case Training:
		return "training"
	case Decaying:
		return "decaying"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is the optimization state carried across epochs.
type State struct {
	BestLoss     float64
	PrevLoss     float64
	BestEpoch    int
	NumDecay     int
	EarlyStop    int
	LearningRate float64 // filled by the controller from the model
}

// Policy decides, from a sequence of per-epoch losses, when to save, decay
// and stop. It has no side effects; the controller applies its decisions.
//
// For each observed loss:
//   - a loss below the best resets the early-stop count and becomes the best
//   - otherwise a loss above the previous epoch's increments the count
//   - when the count exceeds the patience and the epoch is past warm-up, the
//     count resets and a decay is taken; beyond the decay budget training
//     finishes
type Policy struct {
	warmupEpoch    int
	earlyStopEpoch int
	maxNumDecay    int
	state          State
	phase          Phase
}

// NewPolicy creates a policy with the given warm-up length, patience and
// decay budget.
func NewPolicy(warmupEpoch, earlyStopEpoch, maxNumDecay int) *Policy {
	p := &Policy{
		warmupEpoch:    warmupEpoch,
		earlyStopEpoch: earlyStopEpoch,
		maxNumDecay:    maxNumDecay,
		state:          State{BestLoss: math.MaxFloat64, PrevLoss: math.MaxFloat64},
		phase:          Training,
	}
	if warmupEpoch > 0 {
		p.phase = Warmup
	}
	return p
}

// Observe records the loss of epoch (1-based) and returns the decision.
// After Finish the policy is Stopped and further observations return Finish.
func (p *Policy) Observe(epoch int, loss float64) Decision {
	if p.phase == Stopped {
		return Finish
	}
	s := &p.state
	d := Hold
	switch {
	case loss < s.BestLoss:
		s.EarlyStop = 0
		s.BestLoss = loss
		s.BestEpoch = epoch
		d = Improved
	case loss > s.PrevLoss:
		s.EarlyStop++
		d = Worse
	}
	if s.EarlyStop > p.earlyStopEpoch && epoch > p.warmupEpoch {
		s.EarlyStop = 0
		s.NumDecay++
		if s.NumDecay > p.maxNumDecay {
			d = Finish
		} else {
			d = Decay
		}
	}
	s.PrevLoss = loss

	switch {
	case d == Finish:
		p.phase = Stopped
	case s.NumDecay > 0:
		p.phase = Decaying
	case epoch < p.warmupEpoch:
		p.phase = Warmup
	default:
		p.phase = Training
	}
	return d
}

// State returns a copy of the current state.
func (p *Policy) State() State {
	return p.state
}

// Phase returns the current phase.
func (p *Policy) Phase() Phase {
	return p.phase
}
