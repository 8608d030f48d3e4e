package main

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Press describes what a simulated driver does in one attempt.
type Press struct {
	// Early presses Delay after arming instead of after lights out.
	Early bool
	// Skip never presses, so the attempt times out.
	Skip  bool
	Delay time.Duration
}

// Strategy decides how each attempt is played.
type Strategy interface {
	Name() string
	Next(attempt int) Press
}

// HumanStrategy reacts after a normally distributed delay and jumps the
// start with a fixed probability.
type HumanStrategy struct {
	Mean           time.Duration
	StdDev         time.Duration
	FalseStartRate float64
	rng            *rand.Rand
}

func NewHumanStrategy(mean, stdDev time.Duration, falseStartRate float64, seed int64) *HumanStrategy {
	return &HumanStrategy{
		Mean:           mean,
		StdDev:         stdDev,
		FalseStartRate: falseStartRate,
		rng:            rand.New(rand.NewPCG(uint64(seed), 0)),
	}
}

func (s *HumanStrategy) Name() string { return "human" }

func (s *HumanStrategy) Next(attempt int) Press {
	if s.FalseStartRate > 0 && s.rng.Float64() < s.FalseStartRate {
		return Press{Early: true}
	}
	delay := s.Mean + time.Duration(s.rng.NormFloat64()*float64(s.StdDev))
	if delay < 0 {
		delay = 0
	}
	return Press{Delay: delay}
}

// JumpStartStrategy always presses while the lights are on.
type JumpStartStrategy struct{}

func (JumpStartStrategy) Name() string          { return "jumpstart" }
func (JumpStartStrategy) Next(attempt int) Press { return Press{Early: true} }

// SleeperStrategy never presses.
type SleeperStrategy struct{}

func (SleeperStrategy) Name() string          { return "sleeper" }
func (SleeperStrategy) Next(attempt int) Press { return Press{Skip: true} }

// NewStrategy builds a strategy by name.
func NewStrategy(name string, mean, stdDev time.Duration, falseStartRate float64, seed int64) (Strategy, error) {
	switch name {
	case "human":
		return NewHumanStrategy(mean, stdDev, falseStartRate, seed), nil
	case "jumpstart":
		return JumpStartStrategy{}, nil
	case "sleeper":
		return SleeperStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (human, jumpstart, sleeper)", name)
	}
}
