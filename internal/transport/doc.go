// Package transport delivers task status snapshots over one of two strategies sharing the [Channel] interface.
//
// # Push
//
// [PushChannel] holds a websocket open to /api/ws/tasks/{id}. Each text frame is one snapshot.
// Closing with [CloseNormal] is an intentional shutdown; any other close code, or a dropped connection, is abnormal.
//
// # Pull
//
// [PullChannel] requests the task status immediately and then on a fixed interval.
// A failed request suspends the interval for one longer backoff delay; a not-found response stops the loop with [EventVanished].
//
// # Timers
//
// All scheduling goes through a [Clock]. [SystemClock] wraps [time.AfterFunc]; [ManualClock] lets tests step time explicitly.
package transport
