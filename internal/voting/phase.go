package voting

import "github.com/emilythestrangee/consensus/backend/internal/models"

// PhaseGate decides whether a motion currently accepts vote changes.
type PhaseGate interface {
	IsOpenForVoting(motion models.Motion) bool
}

// MotionPhase reads the motion's own phase. It has no side effects.
type MotionPhase struct{}

func (MotionPhase) IsOpenForVoting(motion models.Motion) bool {
	return motion.Phase == models.PhaseVoting
}
