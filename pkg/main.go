package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	pkg "git.solsynth.dev/hypernet/gathering/pkg/internal"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/bus"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/database"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/grpc"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/http"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/api"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/http/exts"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/metrics"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/realtime"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/recording"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/rtc"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/services"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/storage"
	"git.solsynth.dev/hypernet/gathering/pkg/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")
	viper.SetDefault("bind", "0.0.0.0:8447")
	viper.SetDefault("grpc_bind", "0.0.0.0:7447")
	viper.SetDefault("nats.notify_subject", "notify.users")
	viper.SetDefault("rtc.base_url", "https://api.agora.io")
	viper.SetDefault("detached_timeout", "1m")
	viper.SetDefault("shutdown_grace", "30s")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Connect to database
	db, err := database.NewSource()
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(db); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Metrics
	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Connect other services
	var notifier services.Notifier = services.LogNotifier{}
	var messageBus *bus.Bus
	if url := viper.GetString("nats.url"); len(url) > 0 {
		if messageBus, err = bus.New(url, "gathering"); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connecting to nats...")
		}
		notifier = services.NewBusNotifier(messageBus, viper.GetString("nats.notify_subject"))
	}

	// Calls and the cloud recorder share one rtc project
	channels := rtc.NewClient(rtc.Config{
		BaseURL:        viper.GetString("rtc.base_url"),
		AppID:          viper.GetString("rtc.app_id"),
		AppCertificate: viper.GetString("rtc.app_certificate"),
		CustomerKey:    viper.GetString("rtc.customer_key"),
		CustomerSecret: viper.GetString("rtc.customer_secret"),
		TokenDuration:  viper.GetDuration("rtc.token_duration"),
		RequestTimeout: viper.GetDuration("rtc.request_timeout"),
		CloseFor:       viper.GetDuration("rtc.close_for"),
	})
	calls := services.NewChannels(channels)

	storageConfig := storage.Config{
		Bucket:     viper.GetString("storage.bucket"),
		RegionName: viper.GetString("storage.region"),
		AccessKey:  viper.GetString("storage.access_key"),
		SecretKey:  viper.GetString("storage.secret_key"),
		Endpoint:   viper.GetString("storage.endpoint"),
		CDNURL:     viper.GetString("storage.cdn_url"),
	}

	recordingConfig := recording.Config{
		BaseURL:        viper.GetString("rtc.base_url"),
		AppID:          viper.GetString("rtc.app_id"),
		CustomerKey:    viper.GetString("rtc.customer_key"),
		CustomerSecret: viper.GetString("rtc.customer_secret"),
		RequestTimeout: viper.GetDuration("rtc.request_timeout"),
		ResourceTTL:    viper.GetDuration("recording.resource_ttl"),
		TokenDuration:  viper.GetDuration("recording.token_duration"),
		ReconcileAfter: viper.GetDuration("recording.reconcile_after"),
		Transcode: recording.TranscodeConfig{
			Width:   viper.GetInt("recording.width"),
			Height:  viper.GetInt("recording.height"),
			FPS:     viper.GetInt("recording.fps"),
			Bitrate: viper.GetInt("recording.bitrate"),
		},
		Storage: recording.StorageConfig{
			Config: storageConfig,
			Vendor: viper.GetInt("storage.vendor"),
			Region: viper.GetInt("storage.vendor_region"),
			Prefix: viper.GetStringSlice("storage.prefix"),
		},
	}

	st := store.New(db)
	recorder := recording.NewOrchestrator(st, recording.NewClient(recordingConfig), calls, recordingConfig).
		WithMetrics(collector)
	if len(storageConfig.Bucket) > 0 {
		bucket, err := storage.NewClient(context.Background(), storageConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("An error occurred when connecting to storage...")
		}
		recorder.WithProbe(bucket)
	}

	hub := realtime.NewHub(services.NewRoomAuthorizer(st), realtime.Config{
		TypingLimit:  viper.GetInt("realtime.typing_limit"),
		TypingWindow: viper.GetDuration("realtime.typing_window"),
	}).WithMetrics(collector)

	supervisor := services.NewSupervisor(viper.GetDuration("detached_timeout"), collector)
	deps := services.Deps{
		Store:      st,
		Hub:        hub,
		Recorder:   recorder,
		Calls:      calls,
		Notifier:   notifier,
		Supervisor: supervisor,
		Metrics:    collector,
	}
	sessionConfig := services.SessionConfig{
		HorizonDays: viper.GetInt("sessions.horizon_days"),
		NoShowGrace: viper.GetDuration("sessions.no_show_grace"),
	}
	sessions := services.NewSessionService(deps, sessionConfig)
	attendees := services.NewAttendeeService(deps)
	series := services.NewSeriesService(deps, sessionConfig)

	// Server
	server := http.NewServer(&api.Server{
		Sessions:      sessions,
		Attendees:     attendees,
		Series:        series,
		Conversations: services.NewConversationService(deps),
		Recordings:    recorder,
		Hub:           hub,
		WebhookSecret: viper.GetString("recording.webhook_secret"),
	}, exts.NewAuthenticator(viper.GetString("security.token_secret")), registry)
	go server.Listen()

	grpcServer := grpc.NewGrpc(db)
	grpcServer.Probe(context.Background())
	go func() {
		if err := grpcServer.Listen(); err != nil {
			log.Fatal().Err(err).Msg("An error occurred when starting grpc server...")
		}
	}()

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	addJob(quartz, "@every 1m", "sessions.no_show", sessions.SweepNoShows)
	addJob(quartz, "@every 10m", "recordings.sweep", recorder.SweepUnfinished)
	addJob(quartz, "@every 30m", "attendees.reconcile", attendees.ReconcileCounts)
	addJob(quartz, "@every 60m", "series.horizon", func(ctx context.Context) (int, error) {
		count, err := series.ExtendHorizons(ctx)
		return int(count), err
	})
	quartz.AddFunc("@every 30s", func() {
		grpcServer.Probe(context.Background())
	})
	quartz.Start()

	// Messages
	log.Info().Msgf("Gathering v%s is started...", pkg.AppVersion)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msgf("Gathering v%s is quitting...", pkg.AppVersion)

	<-quartz.Stop().Done()
	if err := server.Shutdown(); err != nil {
		log.Warn().Err(err).Msg("An error occurred when shutting down server...")
	}
	grpcServer.Stop()
	supervisor.Wait(viper.GetDuration("shutdown_grace"))
	messageBus.Close()
}

func addJob(quartz *cron.Cron, spec, name string, job func(ctx context.Context) (int, error)) {
	_, err := quartz.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if count, err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Timed task failed.")
		} else if count > 0 {
			log.Info().Str("job", name).Int("count", count).Msg("Timed task done.")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Str("job", name).Msg("An error occurred when scheduling timed task.")
	}
}
