// Package api exposes Courier's management operations over HTTP. It
// provides a chi router with JSON handlers for items, the dead letter
// queue, recurring publishes, and health reporting, plus a WebSocket
// endpoint streaming lifecycle events from the realtime broker.
package api
