// Package connection tracks the live push channel for each connected user.
// The raw map is never exposed; callers interact only through register,
// unregister, lookup, and send.
package connection
