package main

import (
	"context"
	"flag"
	"log"
	"runtime"
	"time"

	"face-overlay/internal/capture"
	"face-overlay/internal/config"
	"face-overlay/internal/debug/timing"
	"face-overlay/internal/gui"
	"face-overlay/internal/landmark/remote"
	"face-overlay/internal/logger"
	"face-overlay/internal/models"
	"face-overlay/internal/overlay"
	"face-overlay/internal/shutdown"
	"face-overlay/internal/tracking"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
)

const (
	AppName    = "Face Overlay"
	AppID      = "com.faceoverlay.face-overlay"
	AppVersion = "1.0.0"

	metricsInterval        = 2 * time.Second
	performanceLogInterval = 30 * time.Second
)

// Application wires the capture loop to its collaborators.
type Application struct {
	settings   config.Settings
	configPath string

	logger   *logger.ZerologAdapter
	store    *models.RuntimeConfigStore
	tracker  *timing.Tracker
	registry *overlay.Registry
	pipeline *tracking.Pipeline
	loop     *capture.Loop
	watcher  *config.Watcher
	shutdown *shutdown.Manager

	fyneApp fyne.App
	gui     *gui.Manager
	window  *capture.WindowDisplay

	loopDone chan struct{}
	loopErr  error
}

func main() {
	configPath := flag.String("config", "", "YAML settings file; watched for changes")
	displayMode := flag.String("display", "", "preview display: fyne or window (overrides the settings file)")
	envFile := flag.String("env", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	configureRuntime()

	if err := config.LoadDotEnv(*envFile); err != nil {
		log.Fatalf("Environment load failed: %v", err)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration invalid: %v", err)
	}
	if *displayMode != "" {
		settings.Display.Mode = *displayMode
		if err := settings.Validate(); err != nil {
			log.Fatalf("Configuration invalid: %v", err)
		}
	}

	application, err := NewApplication(settings, *configPath)
	if err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Application execution failed: %v", err)
	}
}

func configureRuntime() {
	runtime.GOMAXPROCS(runtime.NumCPU())
}

func NewApplication(settings config.Settings, configPath string) (*Application, error) {
	appLogger := logger.NewConsoleFileLogger(logger.ParseLevel(settings.Log.Level), logger.FileOptions{
		Path:       settings.Log.File,
		MaxSizeMB:  settings.Log.MaxSizeMB,
		MaxBackups: settings.Log.MaxBackups,
		MaxAgeDays: settings.Log.MaxAgeDays,
	})

	appLogger.Info("Application", "starting", map[string]interface{}{
		"version":      AppVersion,
		"go_version":   runtime.Version(),
		"num_cpu":      runtime.NumCPU(),
		"log_level":    settings.Log.Level,
		"display":      settings.Display.Mode,
		"landmark_url": settings.Detector.URL,
	})

	store, err := models.NewRuntimeConfigStore(settings.RuntimeConfig())
	if err != nil {
		appLogger.Shutdown()
		return nil, err
	}

	registry, err := overlay.NewRegistry(
		overlay.DefaultDefinitions(settings.Filters.GlassesAsset, settings.Filters.MustacheAsset),
		nil, appLogger)
	if err != nil {
		appLogger.Shutdown()
		return nil, err
	}
	if failed := registry.Preload(); len(failed) > 0 {
		appLogger.Warning("Application", "some filters are unavailable", map[string]interface{}{
			"failed": len(failed),
			"total":  len(registry.Kinds()),
		})
	}

	detectorSettings := remote.DefaultSettings(settings.Detector.URL)
	detectorSettings.JPEGQuality = settings.Detector.JPEGQuality

	tracker := timing.NewTracker(timing.DefaultWindow)
	pipeline := tracking.NewPipeline(remote.NewFactory(detectorSettings, appLogger), tracker, appLogger)

	a := &Application{
		settings:   settings,
		configPath: configPath,
		logger:     appLogger,
		store:      store,
		tracker:    tracker,
		registry:   registry,
		pipeline:   pipeline,
		shutdown:   shutdown.NewManager(appLogger),
		loopDone:   make(chan struct{}),
	}

	var display capture.Display
	switch settings.Display.Mode {
	case config.DisplayWindow:
		a.window = capture.NewWindowDisplay(AppName)
		display = a.window
	default:
		a.fyneApp = app.NewWithID(AppID)
		a.fyneApp.SetMetadata(&fyne.AppMetadata{
			ID:      AppID,
			Name:    AppName,
			Version: AppVersion,
		})
		a.gui = gui.NewManager(a.fyneApp, store, registry.Kinds(), appLogger)
		a.gui.Window().Resize(fyne.NewSize(1100, 620))
		a.gui.Window().CenterOnScreen()
		display = a.gui
	}

	a.loop = capture.NewLoop(store, capture.OpenCamera, pipeline, registry, display, tracker, appLogger)

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, store, appLogger)
		if err != nil {
			appLogger.Error("Application", err, map[string]interface{}{
				"stage": "settings watcher",
			})
		} else {
			a.watcher = watcher
			if a.gui != nil {
				watcher.SetReloadHandler(a.gui.SyncSettings)
			}
		}
	}

	a.registerShutdown()
	return a, nil
}

// registerShutdown orders teardown: components stop in reverse registration
// order, so the loop is drained before anything it uses is released.
func (a *Application) registerShutdown() {
	a.shutdown.Register("logger", a.logger)
	a.shutdown.Register("filter registry", a.registry)
	a.shutdown.RegisterCloser("tracking pipeline", a.pipeline)
	if a.window != nil {
		a.shutdown.RegisterCloser("preview window", a.window)
	}
	if a.watcher != nil {
		a.shutdown.Register("settings watcher", a.watcher)
	}
	if a.gui != nil {
		a.shutdown.Register("settings window", a.gui)
	}
	a.shutdown.Register("capture loop", shutdown.Func(func() {
		<-a.loopDone
	}))
}

func (a *Application) Run() error {
	ctx := a.shutdown.Context()
	a.shutdown.Listen()

	if a.watcher != nil {
		go a.watcher.Run(ctx)
	}
	go a.startPerformanceMonitoring(ctx)

	if a.gui == nil {
		// HighGUI windows are driven from the main goroutine.
		a.runLoop(ctx)
	} else {
		go func() {
			a.runLoop(ctx)
			if a.gui.Running() {
				fyne.Do(a.fyneApp.Quit)
			}
		}()
		a.gui.ShowAndRun()
		a.gui.RequestQuit()
		<-a.loopDone
	}

	a.shutdown.Shutdown()
	return a.loopErr
}

func (a *Application) runLoop(ctx context.Context) {
	defer close(a.loopDone)
	a.loopErr = a.loop.Run(ctx)
	if a.loopErr != nil {
		a.logger.Error("Application", a.loopErr, map[string]interface{}{
			"stage": "capture loop",
		})
	}
}

func (a *Application) startPerformanceMonitoring(ctx context.Context) {
	metrics := time.NewTicker(metricsInterval)
	defer metrics.Stop()
	perfLog := time.NewTicker(performanceLogInterval)
	defer perfLog.Stop()

	lastFrames, lastTick := a.loop.Frames(), time.Now()

	for {
		select {
		case <-metrics.C:
			frames, now := a.loop.Frames(), time.Now()
			fps := float64(frames-lastFrames) / now.Sub(lastTick).Seconds()
			lastFrames, lastTick = frames, now
			if a.gui != nil {
				a.gui.UpdateMetrics(fps, a.tracker.GetAverageTime(capture.StageFrame))
			}
		case <-perfLog.C:
			a.logPerformanceMetrics()
		case <-ctx.Done():
			return
		}
	}
}

func (a *Application) logPerformanceMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fields := map[string]interface{}{
		"frames":          a.loop.Frames(),
		"go_memory_mb":    memStats.Alloc / 1024 / 1024,
		"go_gc_runs":      memStats.NumGC,
		"goroutine_count": runtime.NumGoroutine(),
	}
	for stage, avg := range a.tracker.Averages() {
		fields["avg_"+stage+"_ms"] = float64(avg) / float64(time.Millisecond)
	}

	a.logger.Debug("Application", "performance metrics", fields)
}
