package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/emmett/voxtask/internal/app"
	"github.com/emmett/voxtask/internal/audio"
	"github.com/emmett/voxtask/internal/config"
	"github.com/emmett/voxtask/internal/metrics"
	"github.com/emmett/voxtask/internal/models"
	"github.com/emmett/voxtask/internal/stt"
	"github.com/emmett/voxtask/internal/stt/vosk"
	"github.com/emmett/voxtask/internal/tasks"
	"github.com/emmett/voxtask/internal/tts"
)

// runtime holds the loaded configuration and everything opened from it
type runtime struct {
	opts    *rootOptions
	cfg     *config.Config
	cfgPath string
	logger  zerolog.Logger
	closers []func() error

	// spoken is shared by the app and the Speak RPC
	spoken tts.Speaker
}

// voiceOptions controls how much of the audio stack buildVoiceApp opens
type voiceOptions struct {
	in           io.Reader
	out          io.Writer
	autoDownload bool
	// selectDevice resolves the capture device up front and prints the
	// available ones when it cannot be found
	selectDevice bool
}

func newRuntime(opts *rootOptions, logOut io.Writer) (*runtime, error) {
	cfg, err := config.LoadWithFallback(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if opts.model != "" {
		cfg.Model.Default = opts.model
	}
	if opts.device != "" {
		cfg.Audio.Device = opts.device
	}
	if opts.store != "" {
		cfg.Tasks.Store = opts.store
	}
	if opts.dbPath != "" {
		cfg.Tasks.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &runtime{
		opts:    opts,
		cfg:     cfg,
		cfgPath: config.ResolvePath(opts.configFile),
		logger:  newLogger(cfg.Logging.Level, logOut),
	}, nil
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

func (r *runtime) onClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Close releases everything in reverse order of opening
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn().Err(err).Msg("close failed")
		}
	}
	r.closers = nil
}

func (r *runtime) openStore() (tasks.Store, error) {
	if r.cfg.Tasks.Store == config.StoreMemory {
		return tasks.NewMemoryStore(), nil
	}

	path := r.cfg.Tasks.DBPath
	if path == "" {
		path = tasks.DefaultDBPath()
	}
	store, err := tasks.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}
	r.onClose(store.Close)
	r.logger.Debug().Str("path", path).Msg("task store opened")
	return store, nil
}

// speaker returns the feedback speaker, opening it on first use
func (r *runtime) speaker(out io.Writer) (tts.Speaker, error) {
	if r.spoken != nil {
		return r.spoken, nil
	}
	if !r.cfg.Feedback.Enabled {
		r.spoken = tts.NewConsoleSpeaker(io.Discard)
		return r.spoken, nil
	}
	if r.cfg.Feedback.Engine != config.FeedbackPiper {
		r.spoken = tts.NewConsoleSpeaker(out)
		return r.spoken, nil
	}

	engine := tts.NewPiperEngine()
	if err := engine.Initialize(tts.DefaultConfig(r.cfg.Feedback.Voice)); err != nil {
		return nil, fmt.Errorf("failed to initialize piper: %w", err)
	}
	r.onClose(engine.Close)

	speaker := tts.NewEngineSpeaker(engine, audio.NewMalgoPlayer(), r.logger.With().Str("component", "tts").Logger())
	r.onClose(speaker.Close)
	r.spoken = speaker
	return speaker, nil
}

func (r *runtime) modelManager(in io.Reader, out io.Writer) *app.ModelManager {
	return app.NewModelManager(models.NewManager(r.cfg.Model.Path, nil), out, in)
}

// modelPath selects the model for the configured language and makes sure
// it is downloaded
func (r *runtime) modelPath(ctx context.Context, in io.Reader, out io.Writer, autoDownload bool) (string, error) {
	mm := r.modelManager(in, out)
	name := mm.SelectModel(r.cfg.Model.Default, r.cfg.Speech.Language)
	path, err := mm.EnsureModel(ctx, name, autoDownload)
	if err != nil {
		return "", err
	}
	r.logger.Info().Str("model", name).Msg("using model")
	return path, nil
}

func (r *runtime) sttConfig(modelPath string) stt.Config {
	sc := stt.DefaultConfig(modelPath)
	sc.SampleRate = r.cfg.Audio.SampleRate
	sc.Language = r.cfg.Speech.Language
	if r.cfg.Speech.MaxAlternatives > 0 {
		sc.MaxAlternatives = r.cfg.Speech.MaxAlternatives
	}
	return sc
}

// engineFactory loads a fresh Vosk recognizer for modelPath on each call
func (r *runtime) engineFactory(modelPath string) func() (stt.Engine, error) {
	return func() (stt.Engine, error) {
		engine := vosk.NewEngine()
		if err := engine.Initialize(r.sttConfig(modelPath)); err != nil {
			return nil, err
		}
		return engine, nil
	}
}

// buildVoiceApp opens the store, speaker, model and microphone monitor and
// wires them into a VoiceApp
func (r *runtime) buildVoiceApp(ctx context.Context, vo voiceOptions) (*app.VoiceApp, *metrics.Metrics, error) {
	if vo.out == nil {
		vo.out = os.Stdout
	}

	store, err := r.openStore()
	if err != nil {
		return nil, nil, err
	}
	speaker, err := r.speaker(vo.out)
	if err != nil {
		return nil, nil, err
	}

	modelPath, err := r.modelPath(ctx, vo.in, vo.out, vo.autoDownload)
	if err != nil {
		return nil, nil, err
	}

	capture := audio.DefaultConfig()
	capture.SampleRate = uint32(r.cfg.Audio.SampleRate)
	capture.DeviceName = r.cfg.Audio.Device
	if vo.selectDevice {
		device, err := app.NewDeviceManager(vo.out).SelectDevice(r.cfg.Audio.Device)
		if err != nil {
			return nil, nil, err
		}
		capture.DeviceName = device.Name
		r.logger.Info().Str("device", device.Name).Msg("using capture device")
	}

	monitorConfig := audio.DefaultMonitorConfig()
	monitorConfig.SampleRate = capture.SampleRate
	monitor := audio.NewActivityMonitor(audio.MalgoFactory(capture), monitorConfig, r.logger)

	engine, err := r.engineFactory(modelPath)()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize STT engine: %w", err)
	}
	r.onClose(engine.Close)

	recognizerConfig := stt.DefaultEngineRecognizerConfig()
	if r.cfg.Speech.NoSpeechTimeout > 0 {
		recognizerConfig.NoSpeechTimeout = r.cfg.Speech.NoSpeechTimeout
	}
	recognizer := stt.NewEngineRecognizer(engine, monitor, recognizerConfig, r.logger)

	m := metrics.New()
	va, err := app.New(app.Options{
		Recognizer: recognizer,
		Monitor:    monitor,
		Activity:   monitor,
		Store:      store,
		Speaker:    speaker,
		SpeechRate: r.cfg.Feedback.Rate,
		Session:    app.SessionConfigFromConfig(r.cfg),
		Settings:   app.SettingsFromConfig(r.cfg),
		Metrics:    m,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return va, m, nil
}

// watchConfig applies speech settings from the config file as it changes.
// It does nothing when running on defaults.
func (r *runtime) watchConfig(ctx context.Context, va *app.VoiceApp) {
	if r.cfgPath == "" {
		return
	}

	watcher, err := config.NewWatcher(r.cfgPath, func(cfg *config.Config) {
		va.ApplySettings(app.SettingsFromConfig(cfg))
	}, r.logger)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", r.cfgPath).Msg("config reload disabled")
		return
	}
	r.onClose(watcher.Close)
	go watcher.Run(ctx)
}
