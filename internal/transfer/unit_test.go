package transfer

import "testing"

func TestUnitID_DeterministicAndPathCleaned(t *testing.T) {
	a := UnitID("/music/album/track01.flac")
	b := UnitID("/music/album/track01.flac")
	c := UnitID("/music/other/../album/track01.flac")

	if a != b {
		t.Errorf("UnitID not deterministic: %q != %q", a, b)
	}

	if a != c {
		t.Errorf("UnitID should clean the path: %q != %q", a, c)
	}

	if a == UnitID("/music/album/track02.flac") {
		t.Error("different targets produced the same unit id")
	}
}

func TestNewUnit_DerivesIDFromTarget(t *testing.T) {
	u := NewUnit("https://cdn.example.com/t1", "/music/album/track01.flac", "album-1", "t1")

	if u.ID != UnitID("/music/album/track01.flac") {
		t.Errorf("ID = %q, want id derived from target path", u.ID)
	}
}

func TestUnit_Equal(t *testing.T) {
	base := NewUnit("https://cdn.example.com/t1", "/music/a.flac", "album-1", "t1")

	tests := []struct {
		name  string
		other *Unit
		want  bool
	}{
		{
			name:  "same source and target",
			other: NewUnit("https://cdn.example.com/t1", "/music/a.flac", "album-2", "other-ref"),
			want:  true,
		},
		{
			name:  "different source",
			other: NewUnit("https://cdn.example.com/t2", "/music/a.flac", "album-1", "t1"),
			want:  false,
		},
		{
			name:  "different target",
			other: NewUnit("https://cdn.example.com/t1", "/music/b.flac", "album-1", "t1"),
			want:  false,
		},
		{
			name:  "nil",
			other: nil,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_StringRoundTrip(t *testing.T) {
	states := []State{StateIdle, StateInProgress, StateCompleted, StateStopped, StateError}

	for _, s := range states {
		if got := StateFromString(s.String()); got != s {
			t.Errorf("StateFromString(%q) = %v, want %v", s.String(), got, s)
		}
	}
}

func TestStateFromString_UnknownMapsToIdle(t *testing.T) {
	if got := StateFromString("paused_v2"); got != StateIdle {
		t.Errorf("StateFromString(unknown) = %v, want idle", got)
	}
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateIdle, false},
		{StateInProgress, false},
		{StateCompleted, true},
		{StateStopped, true},
		{StateError, true},
	}

	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Errorf("%v.Terminal() = %v, want %v", tt.state, got, tt.want)
		}
	}
}
