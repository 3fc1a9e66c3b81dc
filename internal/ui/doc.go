// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI follows one uploaded report job at a time:
//  1. [HistoryScreen] : Browse past uploads and pick one to watch
//  2. [UploadScreen] : Upload the file given on the command line
//  3. [WatchScreen] : Follow queued and processing states with a spinner and progress bar
//  4. [ResultScreen] : Show the artifacts or the failure, then download, clean up or go back
//  5. [DownloadScreen] : Report artifact downloads as they finish
//
// The [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Task status arrives through a [tasks.StatusView], whose change hook feeds a buffered channel read by a waiting command.
// Download progress flows through a channel from [tasks.DownloadAll], providing non-blocking status reporting.
//
// Keyboard bindings (enter, d, c, r/esc, q) come with contextual help displayed via charmbracelet/bubbles/help.
package ui
