//go:build !linux

package worker

import "testing"

func TestTransitionIsNoopOffLinux(t *testing.T) {
	if err := Transition([]uintptr{0, 1, 2}); err != nil {
		t.Errorf("Transition() = %v, want nil off Linux", err)
	}
}
