package app

import (
	"fmt"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/icons"

	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
	"github.com/catvomitingrainbows/vocal-liquid/stt"
)

// Tray is the menu-bar item. Its label reflects the recorder state.
type Tray struct {
	tray   *application.SystemTray
	menu   *application.Menu
	status *application.MenuItem
	toggle *application.MenuItem
}

// TrayActions are the handlers behind the tray menu.
type TrayActions struct {
	Toggle           func()
	ResetPermissions func()
	Quit             func()
}

// NewTray creates the tray item and its menu.
func NewTray(app *application.App, hotkey string, actions TrayActions) *Tray {
	t := &Tray{tray: app.SystemTray.New()}
	t.tray.SetTemplateIcon(icons.SystrayMacTemplate)
	t.tray.SetTooltip("Vocal Liquid (" + hotkey + ")")

	t.menu = app.NewMenu()
	t.status = t.menu.Add(statusLabel(types.Status{State: types.StateIdle})).SetEnabled(false)
	t.menu.AddSeparator()
	t.toggle = t.menu.Add(toggleLabel(types.StateIdle)).
		OnClick(func(*application.Context) { actions.Toggle() })
	t.menu.Add("Reset Permissions").
		OnClick(func(*application.Context) { actions.ResetPermissions() })
	t.menu.AddSeparator()
	t.menu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(*application.Context) { actions.Quit() })

	t.tray.SetMenu(t.menu)
	return t
}

// Update redraws the tray for st. Safe from any goroutine.
func (t *Tray) Update(st types.Status) {
	application.InvokeAsync(func() {
		t.tray.SetLabel(trayLabel(st.State))
		t.status.SetLabel(statusLabel(st))
		t.toggle.SetLabel(toggleLabel(st.State))
		t.toggle.SetEnabled(st.State != types.StateTranscribing)
		t.menu.Update()
	})
}

// trayLabel is shown next to the icon. Idle clears it so the icon returns
// to its template rendering.
func trayLabel(s types.State) string {
	switch s {
	case types.StateRecording:
		return "● REC"
	case types.StateTranscribing:
		return "…"
	default:
		return ""
	}
}

func statusLabel(st types.Status) string {
	switch st.State {
	case types.StateRecording:
		return "Recording since " + st.Since.Format(time.Kitchen)
	case types.StateTranscribing:
		return fmt.Sprintf("Transcribing %s of audio", audioLength(st.Samples).Round(time.Second/10))
	default:
		return "Idle"
	}
}

func toggleLabel(s types.State) string {
	if s == types.StateRecording {
		return "Stop Recording"
	}
	return "Start Recording"
}

func audioLength(samples int) time.Duration {
	return time.Duration(samples) * time.Second / stt.SampleRate
}
