package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bosley/signspeak/audio"
	"github.com/bosley/signspeak/auth"
	"github.com/bosley/signspeak/camera"
	"github.com/bosley/signspeak/capture"
	"github.com/bosley/signspeak/classifier"
	"github.com/bosley/signspeak/config"
	"github.com/bosley/signspeak/events"
	"github.com/bosley/signspeak/history"
	"github.com/bosley/signspeak/server"
	"github.com/bosley/signspeak/session"
	"github.com/bosley/signspeak/settings"
	"github.com/bosley/signspeak/speech"
	"github.com/bosley/signspeak/store"
)

func openSource(ctx context.Context, cfg config.CameraConfig) (camera.Source, error) {
	switch cfg.Mode {
	case "spool":
		src, err := camera.NewSpoolSource(cfg.SpoolDir)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := src.Watch(ctx); err != nil {
				slog.Error("Spool watcher failed", "error", err, "dir", cfg.SpoolDir)
			}
		}()
		slog.Info("Using spool directory frames", "dir", cfg.SpoolDir)
		return src, nil
	default:
		src := camera.NewFFmpegSource(cfg.FFmpegPath, cfg.InputFormat, cfg.Device, cfg.Timeout)
		if err := src.Ready(ctx); err != nil {
			// Not fatal; the first capture reports it and Retry can recover.
			slog.Warn("Camera not ready", "error", err, "device", cfg.Device)
		}
		slog.Info("Using ffmpeg capture", "device", cfg.Device, "format", cfg.InputFormat)
		return src, nil
	}
}

func openVoice(cfg config.VoiceConfig) speech.Voice {
	voice, err := speech.NewVoice(cfg.Engine, cfg.EspeakPath, audio.NewPlayer(cfg.Device))
	if err != nil {
		slog.Warn("Speech output unavailable, logging utterances instead", "error", err)
		return speech.LogVoice{}
	}
	return voice
}

func serve(ctx context.Context, cfg config.Config) error {
	db, err := store.InitDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	slog.Info("Database ready", "dialect", db.Dialect())

	translations := store.NewTranslationRepo(db)
	authSvc := auth.NewService(store.NewUserRepo(db), cfg.JWTSecret, cfg.TokenTTL)

	source, err := openSource(ctx, cfg.Camera)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	defer source.Close()

	cls, err := classifier.New(classifier.Options{
		Provider: cfg.Classifier.Provider,
		Model:    cfg.Classifier.Model,
		APIKey:   cfg.Classifier.APIKey,
		Latency:  cfg.Classifier.Latency,
	})
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("Classifier ready", "provider", cfg.Classifier.Provider, "model", cfg.Classifier.Model)

	feedback := speech.NewFeedback(openVoice(cfg.Voice))
	defer feedback.Close()

	prefs := settings.NewManager(settings.NewFileStore(cfg.SettingsPath))
	if qs, ok := source.(interface{ SetQuality(camera.Quality) }); ok {
		prefs.OnChange(func(s settings.Settings) { qs.SetQuality(s.CameraQuality) })
	}

	hist := history.NewStore(translations, cfg.PersistQueue)
	hist.Start(ctx)
	defer hist.Close()

	hub := events.NewHub()
	publishers := events.Multi{hub}
	if cfg.NATS.URL != "" {
		natsPub, err := events.ConnectNATS(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			slog.Warn("NATS unavailable, events stay local", "error", err)
		} else {
			defer natsPub.Close()
			publishers = append(publishers, natsPub)
		}
	}

	var archive capture.Archiver
	if cfg.Camera.ArchiveDir != "" {
		archive = camera.NewArchive(cfg.Camera.ArchiveDir)
		slog.Info("Archiving captured frames", "dir", cfg.Camera.ArchiveDir)
	}

	gate := session.NewGate(authSvc, hist, feedback)
	ctrl := capture.NewController(capture.Deps{
		Source:          source,
		Classifier:      cls,
		Session:         gate,
		Speaker:         feedback,
		History:         hist,
		Prefs:           prefs,
		Archive:         archive,
		Events:          publishers,
		ClassifyTimeout: cfg.Classifier.Timeout,
	})
	gate.OnRevoke(func(session.Identity) { ctrl.Reset() })
	gate.OnRevoke(func(id session.Identity) {
		publishers.Publish(events.New(events.TypeSession, id.UserID, "revoked"))
		hub.Disconnect(id.UserID)
	})
	defer gate.Revoke()

	srv := server.New(server.Config{
		Addr:     cfg.HTTPAddr,
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
	}, server.Deps{
		Auth:         authSvc,
		DB:           db,
		Translations: translations,
		Gate:         gate,
		Capture:      ctrl,
		History:      hist,
		Settings:     prefs,
		Speech:       feedback,
		Hub:          hub,
	})

	err = srv.Run(ctx)
	slog.Debug("Program exiting")
	return err
}
