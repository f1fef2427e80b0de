// Package workflow reaches the external AI workflow engine. The engine is an
// opaque black box over HTTP: requests go out through Dispatch, answers come
// back later on the gateway's receive webhook.
package workflow
