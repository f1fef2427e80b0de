// Package store provides append-only persistence for conversational history.
// Sessions and their messages are written by the ask and receive paths and
// read back with pagination by the history query endpoint.
package store
