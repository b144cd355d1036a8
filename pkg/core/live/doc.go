// Package live runs a real-time voice conversation against a remote
// multimodal endpoint.
//
// A Pipeline owns one conversation: it opens the microphone, creates an input
// and an output audio context, dials the remote session and then streams
// captured audio out while scheduling returned audio for gapless playback and
// merging streamed transcription fragments into a transcript.
//
// # State Machine
//
//	IDLE → INITIALIZING → CONNECTING → OPEN → CLOSED
//	            │              │         │
//	            └──────────────┴─────────┴──→ ERROR
//
// Every exit path runs the same teardown, which releases each acquired
// resource exactly once.
//
// # Concurrency
//
// A single loop goroutine owns the transcript, the playback cursor and the set
// of playing sources. The receive, decode and send goroutines talk to it only
// through channels. The capture callback runs on the device's goroutine; it
// encodes the window and hands it to the sender without blocking, dropping the
// window when a unit is already queued.
//
// Devices and the remote session are interfaces so the same pipeline drives a
// browser over a WebSocket bridge and local sound hardware.
package live
