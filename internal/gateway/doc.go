// Package gateway bridges synchronous chat requests to the asynchronous
// workflow engine. The ask path dispatches and returns immediately; the
// receive path accepts the engine's out-of-band callback, persists the AI
// turn, and pushes it to the originating user's live connection when one
// exists. The two paths share no transport context and are joined only by a
// correlation key with a bounded lifetime.
package gateway
