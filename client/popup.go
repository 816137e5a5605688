package client

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/pkg/errors"
)

// ErrPopupClosed is returned when the sign-in window is dismissed before
// the flow completes.
var ErrPopupClosed = errors.New("popup closed before sign-in completed")

// ErrPopupBlocked is returned when the sign-in window cannot be opened.
var ErrPopupBlocked = errors.New("popup blocked: sign-in window could not be opened")

// PopupFeatures describes the sign-in window geometry. Left and Top are
// derived from the screen dimensions so the window opens centered.
type PopupFeatures struct {
	Width        int
	Height       int
	ScreenWidth  int
	ScreenHeight int
}

// DefaultPopupFeatures is a 500x600 window centered on a common desktop
// resolution.
var DefaultPopupFeatures = PopupFeatures{
	Width:        500,
	Height:       600,
	ScreenWidth:  1920,
	ScreenHeight: 1080,
}

// Left is the centered horizontal position.
func (f PopupFeatures) Left() int {
	left := (f.ScreenWidth - f.Width) / 2
	if left < 0 {
		return 0
	}
	return left
}

// Top is the centered vertical position.
func (f PopupFeatures) Top() int {
	top := (f.ScreenHeight - f.Height) / 2
	if top < 0 {
		return 0
	}
	return top
}

// Window is an open sign-in window. Closed fires when the user dismisses
// the window without completing sign-in; launchers that cannot observe
// dismissal return a channel that never fires.
type Window interface {
	Closed() <-chan struct{}
	Close()
}

// Launcher opens the authorization URL in a user-visible window. The
// browser-based implementation is BrowserLauncher; tests substitute fakes.
type Launcher interface {
	Open(ctx context.Context, authURL string, features PopupFeatures) (Window, error)
}

// BrowserLauncher opens the system browser. Dismissal of a system browser
// tab is not observable, so its Window never reports closure; flow
// abandonment surfaces as context cancellation instead.
type BrowserLauncher struct{}

type browserWindow struct{}

func (browserWindow) Closed() <-chan struct{} { return nil }
func (browserWindow) Close()                  {}

// Open launches the platform browser opener with the authorization URL.
func (BrowserLauncher) Open(_ context.Context, authURL string, _ PopupFeatures) (Window, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", authURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL)
	default:
		cmd = exec.Command("xdg-open", authURL)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(ErrPopupBlocked, err.Error())
	}
	return browserWindow{}, nil
}
