// Package upload hands completed trial sessions to external sinks.
//
// A Dispatcher implements the engine's Uploader. Upload returns immediately;
// each configured Sink receives the summary on its own goroutine with a
// bounded timeout. Sink failures are logged and never reach gameplay.
//
// HTTPSink posts the summary to a backend endpoint as
//
//	{"session_data": {...summary fields..., "reaction_times": [ms, ...]}}
//
// A "{session_id}" placeholder in the endpoint URL is replaced with the
// session's ID.
package upload
