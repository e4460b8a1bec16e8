package stream

import "testing"

func TestAggregateStatusPriority(t *testing.T) {
	cases := []struct {
		name   string
		states []State
		want   State
	}{
		{"empty", nil, StateDisconnected},
		{"all disconnected", []State{StateDisconnected, StateDisconnected}, StateDisconnected},
		{"one connected masks errors", []State{StateError, StateConnected, StateDisconnected}, StateConnected},
		{"connecting beats error", []State{StateError, StateConnecting}, StateConnecting},
		{"error beats disconnected", []State{StateDisconnected, StateError}, StateError},
		{"single connecting", []State{StateConnecting}, StateConnecting},
	}
	for _, tc := range cases {
		if got := AggregateStatus(tc.states); got != tc.want {
			t.Errorf("%s: AggregateStatus = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateConnected.String() != "connected" || State(42).String() != "unknown" {
		t.Fatal("State.String mapping broken")
	}
}
