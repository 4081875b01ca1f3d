// Package picker asks the user for a track with the desktop's native file
// dialog and announces finished exports.
package picker

import (
	"errors"
	"strings"

	"github.com/ncruces/zenity"
	log "github.com/sirupsen/logrus"
	"github.com/sqweek/dialog"
)

// Extensions lists the audio types offered in the dialog.
var Extensions = []string{"wav", "mp3", "flac", "ogg", "m4a", "aiff"}

// Native dialog entry points, swapped out in tests.
var (
	openDialog = func(title string, exts []string) (string, error) {
		return dialog.File().Title(title).Filter("Audio files", exts...).Load()
	}
	openZenity = func(title string, exts []string) (string, error) {
		patterns := make([]string, len(exts))
		for i, e := range exts {
			patterns[i] = "*." + e
		}
		return zenity.SelectFile(zenity.Title(title), zenity.FileFilters{{Name: "Audio files", Patterns: patterns}})
	}
	showInfo = func(title, text string) error {
		return zenity.Info(text, zenity.Title(title), zenity.InfoIcon)
	}
)

// Dialog implements the controller's Picker and Notifier.
type Dialog struct {
	Title string
}

// New returns a dialog titled "Open track".
func New() *Dialog {
	return &Dialog{Title: "Open track"}
}

// PickFile shows the file dialog. Cancelling returns an empty path and no
// error. When the native dialog is unavailable zenity is tried instead.
func (d *Dialog) PickFile() (string, error) {
	path, err := openDialog(d.Title, Extensions)
	if errors.Is(err, dialog.ErrCancelled) {
		return "", nil
	}
	if err != nil {
		log.Debugf("Native file dialog failed, trying zenity: %v", err)
		path, err = openZenity(d.Title, Extensions)
		if errors.Is(err, zenity.ErrCanceled) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
	}
	return strings.TrimSpace(path), nil
}

// Notify shows an information box. Failures are logged, not returned.
func (d *Dialog) Notify(title, text string) {
	if err := showInfo(title, text); err != nil && !errors.Is(err, zenity.ErrCanceled) {
		log.Warnf("Notification not shown: %v", err)
	}
}
