package dualmix

import (
	"math"
	"sync/atomic"
)

// VolumeState is the control-plane view of one gain stage. The invariant
// is effective = muted ? 0 : level*boost; realtime threads never read this
// struct, only the derived effective scalar.
type VolumeState struct {
	Level float64
	Boost float64
	Muted bool
}

// Effective computes the single gain scalar actually applied to samples.
func (v VolumeState) Effective() float64 {
	if v.Muted {
		return 0
	}
	return v.Level * v.Boost
}

// gainControl holds the mutable volume record plus the published effective
// scalar. The record is owned by the engine's control mutex; effective is
// a lock-free float32 read on every audio callback.
type gainControl struct {
	level float64
	boost float64
	muted bool

	effective atomic.Uint32 // math.Float32bits
}

func newGainControl(level, boost float64) *gainControl {
	g := &gainControl{level: clampLevel(level), boost: clampBoost(boost)}
	g.publish()
	return g
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampBoost(b float64) float64 {
	if b < 1 {
		return 1
	}
	return b
}

func (g *gainControl) setLevel(v float64) {
	g.level = clampLevel(v)
	g.publish()
}

func (g *gainControl) setBoost(b float64) {
	g.boost = clampBoost(b)
	g.publish()
}

func (g *gainControl) setMuted(m bool) {
	g.muted = m
	g.publish()
}

func (g *gainControl) snapshot() VolumeState {
	return VolumeState{Level: g.level, Boost: g.boost, Muted: g.muted}
}

func (g *gainControl) apply(v VolumeState) {
	g.level = clampLevel(v.Level)
	g.boost = clampBoost(v.Boost)
	g.muted = v.Muted
	g.publish()
}

// publish recomputes and stores the effective scalar.
func (g *gainControl) publish() {
	g.effective.Store(math.Float32bits(float32(g.snapshot().Effective())))
}

// Effective is the realtime read: one atomic load, no locks.
func (g *gainControl) Effective() float32 {
	return math.Float32frombits(g.effective.Load())
}
