// Package tasks keeps a live, consistent view of a remote processing task and reports on it.
//
// # Synchronization
//
// [Synchronizer.Subscribe] opens one session per task id. A session prefers the push channel and fails over to polling:
//   - push error or close before the connection opened, or before any snapshot arrived : poll immediately
//   - abnormal close after at least one snapshot : poll after [SynchronizerOpts.ReconnectDelay]
//   - close with code 1000 : nothing, the server ended the stream on purpose
//
// Once polling, the session never returns to push.
//
// Every snapshot is forwarded to [Callbacks.OnSnapshot]. A complete snapshot tears the session down and fires [Callbacks.OnComplete];
// a failed one tears it down and fires [Callbacks.OnError]. Teardown happens once, guarded by a terminated flag that is checked before
// any event mutates the session, so late network responses are dropped.
//
// # Presentation
//
// [StatusView] mirrors a session into a [ViewState] for a UI and re-subscribes whenever its task id changes.
//
// # Progress Reporting
//
// [Watch] and [DownloadAll] block until done and report [ProgressUpdate] values over a channel.
// Updates use select with default to prevent blocking.
//
// # Persistence
//
// The optional [Recorder] interface lets [Watch] store the terminal snapshot (repositories.TaskRepository).
// Recording errors are reported in the result and never abort the watch.
package tasks
