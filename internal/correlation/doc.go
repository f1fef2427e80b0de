// Package correlation tracks requests dispatched to the external workflow
// engine that still await their asynchronous callback. Entries live only in
// process memory with a bounded lifetime: losing one merely means a late
// reply is dropped rather than corrupting state.
package correlation
