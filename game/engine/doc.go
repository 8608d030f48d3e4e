// Package engine implements the timed reaction trial behind the start-lights game.
//
// A session is a fixed number of attempts. Each attempt arms a row of lights
// one at a time, holds for a random interval, then fires the go signal. The
// player's reaction is measured from the go instant. A press before the go
// signal is a false start, and no press before the response timeout is a
// timeout. Every attempt resolves exactly once.
//
// Core Types:
//
// Sequencer drives the light cadence and the randomized hold. TrialEngine is
// the state machine (ready, armed, live, resolved, complete) that owns the
// session and consumes react events. Aggregator turns a completed session into
// a Summary and folds it into the process-wide HistoricalRecord.
//
// Threading:
//
// None of these types lock. They are meant to be driven from a single event
// loop: the Clock handed to the engine must deliver timer callbacks on the
// same goroutine that calls Start, ReactAt and Advance. Under that rule the
// state check at the top of every transition is an atomic check-and-set, which
// is what decides the race between a press and the go signal.
//
// Usage:
//
//	eng, err := engine.NewEngine(cfg, engine.Deps{
//		Clock:      lp.Clock(),
//		Trigger:    source,
//		Notifier:   notifier,
//		Uploader:   dispatcher,
//		Aggregator: aggregator,
//	})
//	if err != nil {
//		return err
//	}
//	lp.Post(func() { _ = eng.Start() })
package engine
