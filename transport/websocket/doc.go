// Package websocket streams live simulation runs to browser and CLI clients.
//
// Architecture:
//
// A central Hub owns every connection and routes messages by run ID. Each
// client has a read goroutine, which only watches for closes and pongs,
// and a write goroutine that drains its send queue. Client bookkeeping is
// confined to the Hub's Run loop.
//
// Message Protocol:
//
// Clients connect with ?run=<id> and receive one JSON Message per frame:
//   - {"event":"step","step":{...},"frame":[...]} after every iteration
//   - {"event":"started"|"finished"|"failed","data":{...}} on lifecycle changes
//
// frame is only present for runs started with capture_frames.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Stop()
//
//	svc := service.NewRunService(registry, configs, service.WithFrameSink(hub))
//
// Backpressure:
//
// Hub implements service.FrameSink. Broadcasts never block the simulation:
// with no clients connected they are skipped, and when the queue is full
// they are dropped and counted. A client whose own queue fills up is
// disconnected.
package websocket
