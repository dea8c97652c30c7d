package game

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Timing describes the randomized delays of the light sequence. Each delay is
// drawn uniformly from [Min, Min+Spread).
type Timing struct {
	Columns      int           `yaml:"columns"`
	ColumnMin    time.Duration `yaml:"column_min"`
	ColumnSpread time.Duration `yaml:"column_spread"`
	HoldMin      time.Duration `yaml:"hold_min"`
	HoldSpread   time.Duration `yaml:"hold_spread"`
}

// DefaultTiming returns the classic start-light timings.
func DefaultTiming() Timing {
	return Timing{
		Columns:      5,
		ColumnMin:    600 * time.Millisecond,
		ColumnSpread: 200 * time.Millisecond,
		HoldMin:      1000 * time.Millisecond,
		HoldSpread:   2000 * time.Millisecond,
	}
}

// Validate reports whether the timing can drive a round.
func (t Timing) Validate() error {
	if t.Columns <= 0 {
		return fmt.Errorf("columns must be positive, got %d", t.Columns)
	}
	if t.ColumnMin < 0 || t.ColumnSpread < 0 || t.HoldMin < 0 || t.HoldSpread < 0 {
		return fmt.Errorf("timing durations must not be negative")
	}
	return nil
}

func (t Timing) columnDelay(r RandomSource) time.Duration {
	return t.ColumnMin + time.Duration(r.Float64()*float64(t.ColumnSpread))
}

func (t Timing) holdDelay(r RandomSource) time.Duration {
	return t.HoldMin + time.Duration(r.Float64()*float64(t.HoldSpread))
}

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Config holds engine construction settings.
type Config struct {
	Timing Timing `yaml:"timing"`
	// LeaderboardSize caps the in-session board of best times.
	LeaderboardSize int `yaml:"leaderboard_size"`
	// ReasonLimit truncates submission failure reasons for display.
	ReasonLimit int `yaml:"reason_limit"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Timing:          DefaultTiming(),
		LeaderboardSize: 10,
		ReasonLimit:     50,
	}
}
