// Package service provides the business logic layer for the start-lights
// reaction trial.
//
// The service package implements:
//   - Multi-session trial management
//   - Configuration loading and listing
//   - Trigger presses routed through each session's debounced source
//   - Session summaries and the process-wide historical record
//
// Core Interfaces:
//
// GameService is the main service interface used by the HTTP, WebSocket and
// MCP transports. SessionManager builds and tracks sessions. ConfigManager
// loads and validates trial configurations. RecordStore lists completed
// sessions that were uploaded to a persistent sink.
//
// Concurrency:
//
// Every engine is owned by a single event loop. The service never touches an
// engine directly; it posts closures with loop.Call and waits for the result.
// Trigger presses go through the session's trigger.Source, which posts the
// reaction to the same loop, so a state read issued after a press always
// observes it.
//
// Usage:
//
//	lp := loop.New(logger)
//	go lp.Run(ctx)
//	aggregator := engine.NewAggregator()
//	sessions := session.NewManager(session.Runtime{Loop: lp, Aggregator: aggregator})
//	configs, _ := config.NewManager("configs", logger)
//	svc := service.NewGameService(sessions, configs, lp, aggregator)
//
//	info, err := svc.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//	_, _ = svc.Start(ctx, info.ID)
//	result, _ := svc.React(ctx, info.ID, "key")
package service
