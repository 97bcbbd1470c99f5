package dualmix

import (
	"math"
	"testing"
)

func TestEffectiveVolume(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state VolumeState
		want  float64
	}{
		{"unity", VolumeState{Level: 1, Boost: 1}, 1},
		{"half", VolumeState{Level: 0.5, Boost: 1}, 0.5},
		{"boosted", VolumeState{Level: 0.5, Boost: 2}, 1},
		{"muted wins over everything", VolumeState{Level: 1, Boost: 4, Muted: true}, 0},
		{"zero level", VolumeState{Level: 0, Boost: 2}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.state.Effective(); got != tc.want {
				t.Errorf("Effective() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGainControlPublishesAtomically(t *testing.T) {
	t.Parallel()

	g := newGainControl(0.5, 2)
	if got := g.Effective(); got != 1.0 {
		t.Fatalf("initial effective = %v, want 1.0", got)
	}

	g.setMuted(true)
	if got := g.Effective(); got != 0 {
		t.Errorf("muted effective = %v, want 0", got)
	}

	// unmute restores the retained level and boost untouched
	g.setMuted(false)
	if got := g.Effective(); got != 1.0 {
		t.Errorf("unmuted effective = %v, want 1.0", got)
	}
	st := g.snapshot()
	if st.Level != 0.5 || st.Boost != 2 {
		t.Errorf("snapshot after mute cycle = %+v, want level 0.5 boost 2", st)
	}
}

func TestGainControlClamps(t *testing.T) {
	t.Parallel()

	g := newGainControl(1, 1)
	g.setLevel(1.7)
	if st := g.snapshot(); st.Level != 1 {
		t.Errorf("level clamped to %v, want 1", st.Level)
	}
	g.setLevel(-3)
	if st := g.snapshot(); st.Level != 0 {
		t.Errorf("level clamped to %v, want 0", st.Level)
	}
	g.setBoost(0.2)
	if st := g.snapshot(); st.Boost != 1 {
		t.Errorf("boost clamped to %v, want 1", st.Boost)
	}
}

func TestGainControlApplyClampsRestoredState(t *testing.T) {
	t.Parallel()

	g := newGainControl(1, 1)
	g.apply(VolumeState{Level: 2, Boost: 0}) // zero-value boost from old state
	st := g.snapshot()
	if st.Level != 1 || st.Boost != 1 {
		t.Errorf("applied state = %+v, want level 1 boost 1", st)
	}
	if got := g.Effective(); math.Abs(float64(got)-1) > 1e-9 {
		t.Errorf("effective = %v, want 1", got)
	}
}
