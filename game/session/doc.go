// Package session keeps the registry of live trial sessions.
//
// Each session owns one engine and one trigger source, built from the shared
// Runtime: the process event loop, the process-wide aggregator, the upload
// dispatcher and a per-session notifier. Session IDs are 4 hex characters,
// generated with crypto/rand and matched case-insensitively.
//
// Removing a session (Delete, expiry or CloseAll) disables its trigger and
// posts engine Close onto the loop, so no timer of a removed session can fire
// afterwards.
//
// Usage:
//
//	manager := session.NewManager(session.Runtime{
//		Loop:       lp,
//		Aggregator: aggregator,
//		Uploader:   dispatcher,
//	})
//
//	sess, err := manager.Create("", "classic", cfg)
//	sess, err = manager.Get(sess.ID)
//	removed := manager.CleanupExpiredSessions(24 * time.Hour)
package session
