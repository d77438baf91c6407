// Package ws implements the live score stream of the vitals collector.
//
// Hub manages a set of connected clients and pushes the snapshot of every
// live page view to all of them on an interval (the engine poll interval in
// production). Clients may pass ?page={id} to follow one page view only.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. The endpoint is mounted at /ws/stream.
package ws
