package lifecycle

import (
	"errors"
	"testing"
)

func TestCanTransitionWalk(t *testing.T) {
	seq := []string{StatusMatching, StatusEnroute, StatusPickup, StatusCarrying, StatusArrived, StatusCompleted}
	for i := 0; i < len(seq)-1; i++ {
		if !CanTransition(seq[i], seq[i+1]) {
			t.Errorf("expected %s -> %s to be allowed", seq[i], seq[i+1])
		}
	}
}

func TestCanTransitionRejectsSkipsAndReversals(t *testing.T) {
	cases := [][2]string{
		{StatusMatching, StatusPickup},    // skip
		{StatusEnroute, StatusCarrying},   // skip
		{StatusPickup, StatusEnroute},     // reversal
		{StatusCompleted, StatusMatching}, // terminal
		{StatusArrived, StatusArrived},    // self
		{StatusCanceled, StatusMatching},  // reserved status
		{StatusMatching, StatusCanceled},
		{"BOGUS", StatusEnroute},
	}
	for _, c := range cases {
		if CanTransition(c[0], c[1]) {
			t.Errorf("expected %s -> %s to be rejected", c[0], c[1])
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(StatusMatching, StatusEnroute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Validate(StatusMatching, StatusCarrying); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(StatusArrived) || !Terminal(StatusCompleted) {
		t.Fatal("terminal classification wrong")
	}
}
