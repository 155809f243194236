package pipeline

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid pipeline transition")

type State string

const (
	Confirm    State = "CONFIRM"
	Processing State = "PROCESSING"
	Filled     State = "FILLED"
	Failed     State = "FAILED"
	Cancelled  State = "CANCELLED"
)

// transitions lists the legal next states. Terminal states have none.
var transitions = map[State][]State{
	Confirm:    {Processing, Cancelled},
	Processing: {Filled, Failed},
}

func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

func (s State) can(next State) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func checkTransition(from, to State) error {
	if !from.can(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
