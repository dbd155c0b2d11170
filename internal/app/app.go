package app

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/catvomitingrainbows/vocal-liquid/audiocapture"
	"github.com/catvomitingrainbows/vocal-liquid/audiocapture/mic"
	"github.com/catvomitingrainbows/vocal-liquid/audiocapture/resample"
	"github.com/catvomitingrainbows/vocal-liquid/clipboard"
	"github.com/catvomitingrainbows/vocal-liquid/config"
	"github.com/catvomitingrainbows/vocal-liquid/hotkey"
	"github.com/catvomitingrainbows/vocal-liquid/hotkey/globalhook"
	"github.com/catvomitingrainbows/vocal-liquid/internal/dispatch"
	"github.com/catvomitingrainbows/vocal-liquid/internal/types"
	"github.com/catvomitingrainbows/vocal-liquid/notify"
	"github.com/catvomitingrainbows/vocal-liquid/permission"
	"github.com/catvomitingrainbows/vocal-liquid/recorder"
	"github.com/catvomitingrainbows/vocal-liquid/store"
	"github.com/catvomitingrainbows/vocal-liquid/stt"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; business logic lives in sub-components.
type Service struct {
	cfg   *config.Config
	store *store.Store
	queue *dispatch.Queue

	perms    *permission.Cache
	capture  *audiocapture.Capture
	engine   *stt.Engine
	notifier *notify.Notifier
	recorder *recorder.Recorder
	hotkey   *hotkey.Listener

	// UI references - set via Init
	app  *application.App
	tray *Tray

	// Version info (set by caller)
	version string

	shutdown sync.Once
}

// New creates a new Service. Call Init() after Wails app is created.
func New(cfg *config.Config, version string) *Service {
	return &Service{cfg: cfg, version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init builds every component and installs the tray. Only a store that
// cannot be opened at all is fatal; other failures degrade and are logged.
// Must be called after Wails application is created.
func (s *Service) Init(app *application.App) error {
	s.app = app

	if err := s.setupStore(); err != nil {
		return err
	}
	s.queue = dispatch.New()

	s.perms = permission.New(
		permission.NewSystemAuthorizer(),
		s.store,
		permission.Options{Bypass: permission.BypassFromEnv()},
	)

	s.capture = audiocapture.New(mic.New(), audiocapture.Config{
		MaxDuration: s.cfg.MaxRecordingDuration(),
		Resample:    resample.New,
	})

	backend, err := newBackend(s.cfg)
	s.engine = stt.NewEngine(backend, err)
	if s.engine.Ready() {
		slog.Info("transcription ready", "backend", s.engine.Backend())
	}

	s.notifier = notify.New(notify.NewDesktop(""), s.store, notify.Options{
		Enabled:    s.cfg.Notifications,
		PerSession: s.cfg.NotificationsPerSession,
		Allowed:    func() bool { return s.perms.IsGranted(permission.Notification) },
	})
	if s.cfg.Notifications {
		s.perms.RequestIfNeeded(permission.Notification, func(granted bool) {
			slog.Info("notification permission", "granted", granted)
		})
	}

	s.recorder = recorder.New(recorder.Deps{
		Permissions: s.perms,
		Capture:     s.capture,
		Transcriber: s.engine,
		Clipboard:   clipboard.NewSystem(),
		Notifier:    s.notifier,
		Queue:       s.queue,
	}, recorder.Options{
		MaxDuration:      s.capture.MaxDuration(),
		SilenceThreshold: s.cfg.SilenceThreshold,
	})

	if app != nil {
		s.tray = NewTray(app, s.cfg.Hotkey, TrayActions{
			Toggle:           s.ToggleRecording,
			ResetPermissions: s.ResetPermissions,
			Quit:             app.Quit,
		})
	}
	s.recorder.OnState(s.onState)

	s.setupHotkey()
	return nil
}

func (s *Service) setupStore() error {
	dir, err := config.StateDir()
	if err == nil {
		s.store, err = store.Open(dir)
	}
	if err == nil {
		slog.Info("state store opened", "path", dir)
		return nil
	}

	slog.Error("open state store, decisions will not persist", "error", err)
	s.store, err = store.OpenInMemory()
	if err != nil {
		return fmt.Errorf("open in-memory store: %w", err)
	}
	return nil
}

func (s *Service) setupHotkey() {
	s.hotkey = hotkey.NewListener(globalhook.New(), s.queue)
	if err := s.hotkey.Register(s.cfg.Hotkey, s.recorder.Toggle); err != nil {
		slog.Error("register hotkey", "combo", s.cfg.Hotkey, "error", err)
		return
	}
	slog.Info("hotkey registered", "combo", s.cfg.Hotkey)
}

func (s *Service) onState(st types.Status) {
	if s.tray != nil {
		s.tray.Update(st)
	}
	s.emit(EventStatus, st)
}

// emit is a safe wrapper around app.Event.Emit
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}

// ToggleRecording starts or stops a recording, like the hotkey.
func (s *Service) ToggleRecording() {
	s.queue.Post(s.recorder.Toggle)
}

// StopRecording stops the current recording, if any.
func (s *Service) StopRecording() {
	s.queue.Post(s.recorder.Stop)
}

// Status returns the current recorder status.
func (s *Service) Status() types.Status {
	return s.recorder.State()
}

// ResetPermissions forgets every cached permission decision and one-time
// hint. The OS is asked again on next use.
func (s *Service) ResetPermissions() {
	s.queue.Post(func() {
		if err := s.perms.ResetAll(); err != nil {
			slog.Error("reset permissions", "error", err)
		}
		if err := s.notifier.ResetShown(); err != nil {
			slog.Error("reset shown notifications", "error", err)
		}
		slog.Info("permissions reset")
		s.emit(EventPermissions, PermissionsReset{
			Microphone:   s.perms.IsGranted(permission.Microphone),
			Notification: s.perms.IsGranted(permission.Notification),
		})
	})
}

// Shutdown cleans up resources. Later calls are no-ops.
func (s *Service) Shutdown() {
	s.shutdown.Do(s.close)
}

func (s *Service) close() {
	if s.hotkey != nil {
		s.hotkey.Unregister()
	}
	if s.queue != nil && s.recorder != nil {
		s.queue.Sync(s.recorder.ForceReset)
	}
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			slog.Error("close transcription engine", "error", err)
		}
	}
	if s.capture != nil {
		if err := s.capture.Shutdown(); err != nil {
			slog.Error("shutdown audio capture", "error", err)
		}
	}
	if s.queue != nil {
		slog.Debug("draining ui queue", "pending", s.queue.Len())
		s.queue.Close()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Error("close store", "error", err)
		}
	}
}
