package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pranav24547/Ai-Surveillance-System/internal/alerts"
	"github.com/pranav24547/Ai-Surveillance-System/internal/api"
	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/evidence"
	"github.com/pranav24547/Ai-Surveillance-System/internal/kafka"
	"github.com/pranav24547/Ai-Surveillance-System/internal/live"
	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/pipeline"
	"github.com/pranav24547/Ai-Surveillance-System/internal/runner"
	"github.com/pranav24547/Ai-Surveillance-System/internal/s3"
	"github.com/pranav24547/Ai-Surveillance-System/internal/services/detection"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Evidence store, optionally mirrored to MinIO
	var mirror evidence.Mirror
	if m := cfg.Storage.Minio; m.Enabled {
		minioClient, err := s3.NewMinioClient(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.Secure)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to MinIO")
		}
		if err := minioClient.EnsureBucket(ctx); err != nil {
			log.Fatal().Err(err).Str("bucket", m.Bucket).Msg("prepare evidence bucket")
		}
		if n, err := minioClient.CountObjects(ctx, "images/"); err != nil {
			log.Warn().Err(err).Msg("count mirrored evidence")
		} else {
			log.Info().Str("bucket", m.Bucket).Int("objects", n).Msg("evidence mirror ready")
		}
		mirror = minioClient
	}

	store, err := evidence.Open(evidence.Config{
		BasePath:      cfg.Storage.EvidencePath,
		MaxFiles:      cfg.Storage.MaxEvidenceFiles,
		SaveAnnotated: cfg.Storage.SaveAnnotatedFrames,
		JPEGQuality:   cfg.Storage.JPEGQuality,
	}, mirror)
	if err != nil {
		log.Fatal().Err(err).Msg("open evidence store")
	}

	// Alert channels; unconfigured ones stay registered but inactive
	coordinator := alerts.NewCoordinator(alerts.Options{
		Enabled:         cfg.Alerts.Enabled,
		Cooldown:        time.Duration(cfg.Alerts.CooldownSeconds) * time.Second,
		HistorySize:     cfg.Alerts.HistorySize,
		DispatchTimeout: cfg.Alerts.DispatchTimeout,
	})
	for _, ch := range []alerts.Channel{
		alerts.NewSMS(cfg.Alerts.SMS),
		alerts.NewEmail(cfg.Alerts.Email),
		alerts.NewTelegram(cfg.Alerts.Telegram),
		alerts.NewWhatsApp(cfg.Alerts.WhatsApp),
		alerts.NewKafka(cfg.Alerts.Kafka),
		alerts.NewMQTT(cfg.Alerts.MQTT),
	} {
		coordinator.ConfigureChannel(ch)
	}

	filter := detection.NewFilter(detection.FilterConfig{
		Threshold:       cfg.Detection.ConfidenceThreshold,
		Classes:         cfg.Detection.Classes,
		Aliases:         cfg.Detection.ClassAliases,
		PersonAlerts:    cfg.Detection.PersonAlerts,
		PersonThreshold: cfg.Detection.PersonThreshold,
		CooldownFrames:  cfg.Detection.CooldownFrames,
	})
	detectClient := detection.NewClient(cfg.Detection.Endpoint, cfg.Detection.Timeout)

	hub := live.NewHub(live.DefaultQueueSize)

	stream := pipeline.New(pipeline.Config{
		Source:      cfg.Video.Source,
		Location:    cfg.Video.Location,
		Width:       cfg.Video.FrameWidth,
		Height:      cfg.Video.FrameHeight,
		FPS:         cfg.Video.FPS,
		BufferSize:  cfg.Video.BufferSize,
		JPEGQuality: cfg.Video.JPEGQuality,
		StopTimeout: cfg.Video.StopTimeout,
	}, pipeline.Deps{
		Detector:  detectClient,
		Filter:    filter,
		Annotator: detection.NewAnnotator(),
		Evidence:  store,
		Alerts:    coordinator,
		Sink:      hub,
	})

	// Control commands over Kafka
	var consumer *kafka.Consumer
	if len(cfg.Control.Brokers) > 0 {
		consumer, err = kafka.NewConsumer(cfg.Control.Brokers, cfg.Control.GroupID, cfg.Control.Topic)
		if err != nil {
			log.Fatal().Err(err).Msg("create Kafka consumer")
		}
	}

	r := runner.New(stream, hub, coordinator, store, filter, consumer, cfg.Video.Location)
	hub.OnChange(func(int) { r.Notify() })
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		r.Run(ctx)
	}()
	if consumer != nil {
		go r.ListenAndRun(ctx)
	}

	handlers := api.NewHandlers(r, store, coordinator, hub)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewRouter(handlers, cfg.Server.APIKeys),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting surveillance API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("API server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown")
	}
	// The consumer may still be saving evidence or dispatching alerts after Stop returns; the
	// store and channels are closed only once it has finished.
	<-runDone
	stream.Stop()
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Alerts.DispatchTimeout+cfg.Video.StopTimeout+5*time.Second)
	defer drainCancel()
	if err := stream.Wait(drainCtx); err != nil {
		log.Warn().Err(err).Msg("pipeline did not finish before shutdown")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn().Err(err).Msg("close Kafka consumer")
		}
	}
	if err := coordinator.Close(); err != nil {
		log.Warn().Err(err).Msg("close alert channels")
	}
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("close evidence store")
	}
}
