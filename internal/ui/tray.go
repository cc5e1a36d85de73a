package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"
)

// SessionCounter reports how many editing sessions are open.
type SessionCounter interface {
	Count() int
}

type Tray struct {
	sessions  SessionCounter
	studioURL string
	logger    *slog.Logger

	statusItem   *systray.MenuItem
	sessionsItem *systray.MenuItem

	mu    sync.Mutex
	ready bool
	count int

	onQuit func()
}

type TrayConfig struct {
	Sessions  SessionCounter
	StudioURL string
	Logger    *slog.Logger
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		sessions:  cfg.Sessions,
		studioURL: cfg.StudioURL,
		logger:    cfg.Logger,
		onQuit:    cfg.OnQuit,
		count:     -1,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Framecraft")
	systray.SetTooltip("Framecraft Studio agent")

	t.mu.Lock()
	t.statusItem = systray.AddMenuItem("Status: Idle", "Current agent status")
	t.statusItem.Disable()

	t.sessionsItem = systray.AddMenuItem(sessionsLabel(0), "Open editing sessions")
	t.sessionsItem.Disable()

	urlItem := systray.AddMenuItem("API: "+t.studioURL, "Local API address")
	urlItem.Disable()
	t.ready = true
	t.mu.Unlock()

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Framecraft Studio agent")

	go func() {
		<-quitItem.ClickedCh
		t.logger.Info("quit requested from tray")
		if t.onQuit != nil {
			t.onQuit()
		}
		systray.Quit()
	}()

	t.refresh()
	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

// Watch refreshes the session count every interval until ctx ends.
func (t *Tray) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.refresh()
		}
	}
}

func (t *Tray) refresh() {
	if t.sessions == nil {
		return
	}
	n := t.sessions.Count()

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready || n == t.count {
		return
	}
	t.count = n
	t.sessionsItem.SetTitle(sessionsLabel(n))
	if n > 0 {
		t.statusItem.SetTitle("Status: Editing")
	} else {
		t.statusItem.SetTitle("Status: Idle")
	}
}

func sessionsLabel(n int) string {
	if n == 1 {
		return "1 open session"
	}
	return fmt.Sprintf("%d open sessions", n)
}

func (t *Tray) Quit() {
	systray.Quit()
}
