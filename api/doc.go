// Package api provides the HTTP REST API for the start-lights reaction trial.
//
// Endpoints:
//
// Session Management:
//   - POST /api/sessions - Create a session ({"config_id": "classic"}, optional)
//   - GET /api/sessions - List sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET /api/sessions/{id} - Get a session with its current state
//   - DELETE /api/sessions/{id} - Delete a session
//
// Trial Operations:
//   - POST /api/sessions/{id}/start - Start a run of attempts
//   - POST /api/sessions/{id}/react - Press the trigger ({"channel": "key|pointer|touch"})
//   - POST /api/sessions/{id}/advance - Move on from a resolved attempt
//   - GET /api/sessions/{id}/state - Current state snapshot
//   - GET /api/sessions/{id}/summary - Summary of the last completed run
//
// Results:
//   - GET /api/history - Statistics across every completed session
//   - POST /api/history/reset - Clear those statistics
//   - GET /api/records - Recently completed sessions from the record store (?limit=N)
//
// Configuration:
//   - GET /api/configs - List trial configurations
//   - POST /api/configs - Save a configuration
//   - GET /api/configs/{name} - Get one configuration
//
// Other:
//   - GET /api/health - Health check
//   - GET /ws?session={id} - WebSocket upgrade
//
// Error Handling:
//
// Errors are returned as {"error": "message"}. Unknown sessions and configs
// map to 404, invalid transitions and incomplete summaries to 409, invalid
// configs and unknown trigger channels to 400, and a stopped event loop to 503.
package api
