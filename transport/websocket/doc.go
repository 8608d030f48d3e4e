// Package websocket pushes trial lifecycle events to connected clients and
// accepts trigger presses from them.
//
// Architecture:
//
// A central Hub owns every connection. Registration, broadcasts and replies
// all pass through the hub's Run loop, so the client map is only touched by
// one goroutine. BroadcastEvent never blocks: it is called from the trial
// event loop, and a slow browser must not delay the lights.
//
// Message Protocol:
//
// Clients connect to /ws?session=<id>. Outbound messages are JSON frames:
//
//	{"session_id": "ab12", "event": "stimulus_on", "data": {"attempt": 1, "lit": 3}}
//
// Events are attempt_armed, stimulus_on, attempt_live, attempt_resolved and
// session_complete, plus action_result and error replies to inbound actions.
// Clients may send:
//
//	{"action": "start"}
//	{"action": "react", "channel": "key"}
//	{"action": "advance"}
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	hub.SetActions(gameService)
package websocket
