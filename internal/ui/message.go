package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/mrx/internal/models"
	"github.com/desertthunder/mrx/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind   MsgKind
	taskID string
	data   any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgHistoryLoaded MsgKind = iota
	MsgUploaded
	MsgStateChanged
	MsgTaskComplete
	MsgTaskFailed
	MsgTaskVanished
	MsgProgressUpdate
	MsgDownloadsComplete
	MsgCleanedUp
)

// historyLoadedMsg is the constructor for [MsgHistoryLoaded]
func historyLoadedMsg(records []*models.TaskRecord, err error) Msg {
	return Msg{
		kind: MsgHistoryLoaded,
		data: struct {
			records []*models.TaskRecord
			err     error
		}{records, err},
	}
}

// uploadedMsg is the constructor for [MsgUploaded]
func uploadedMsg(resp *models.UploadResponse, err error) Msg {
	return Msg{
		kind: MsgUploaded,
		data: struct {
			resp *models.UploadResponse
			err  error
		}{resp, err},
	}
}

// stateChangedMsg is the constructor for [MsgStateChanged]
func stateChangedMsg(taskID string, state tasks.ViewState) Msg {
	return Msg{kind: MsgStateChanged, taskID: taskID, data: state}
}

// taskCompleteMsg is the constructor for [MsgTaskComplete]
func taskCompleteMsg(taskID string) Msg {
	return Msg{kind: MsgTaskComplete, taskID: taskID}
}

// taskFailedMsg is the constructor for [MsgTaskFailed]
func taskFailedMsg(taskID, message string) Msg {
	return Msg{kind: MsgTaskFailed, taskID: taskID, data: message}
}

// taskVanishedMsg is the constructor for [MsgTaskVanished]
func taskVanishedMsg(taskID string) Msg {
	return Msg{kind: MsgTaskVanished, taskID: taskID}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// downloadsCompleteMsg is the constructor for [MsgDownloadsComplete]
func downloadsCompleteMsg(result *tasks.DownloadResult, err error) Msg {
	return Msg{
		kind: MsgDownloadsComplete,
		data: struct {
			result *tasks.DownloadResult
			err    error
		}{result, err},
	}
}

// cleanedUpMsg is the constructor for [MsgCleanedUp]
func cleanedUpMsg(taskID string, err error) Msg {
	return Msg{kind: MsgCleanedUp, taskID: taskID, data: err}
}
