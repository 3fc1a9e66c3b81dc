package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/mrx/internal/models"
)

var _ list.Item = historyItem{}

// historyItem wraps [models.TaskRecord] to implement [list.Item].
type historyItem struct {
	record *models.TaskRecord
}

func (i historyItem) FilterValue() string { return i.record.Filename() }
func (i historyItem) Title() string       { return i.record.Filename() }
func (i historyItem) Description() string {
	desc := fmt.Sprintf("%s • %s", i.record.Status(), i.record.TaskID())
	if n := len(i.record.Files()); n > 0 {
		desc = fmt.Sprintf("%s • %d files", desc, n)
	}
	if i.record.CleanedUp() {
		desc += " • cleaned up"
	}
	return desc
}
