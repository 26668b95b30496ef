package main

import (
	"context"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/config"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/fusion"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/journal"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	envFile := flag.String("env", ".env", "optional dotenv file with overrides")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := util.NewLogger("info", "")
		l.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	if err := config.ApplyEnv(cfg, *envFile); err != nil {
		l := util.NewLogger("info", "")
		l.Fatal().Err(err).Msg("apply env")
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat).With().Str("app", cfg.App.Name).Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var opts []fusion.Option
	if cfg.App.JournalPath != "" {
		rec, err := journal.NewJSONLRecorder(cfg.App.JournalPath, log)
		if err != nil {
			log.Fatal().Err(err).Msg("open journal")
		}
		defer rec.Close()
		opts = append(opts, fusion.WithRecorder(rec))
	}

	engine := fusion.NewEngine(cfg.Fusion.EngineConfig(), log, opts...)
	streams, err := buildStreams(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build streams")
	}
	for _, s := range streams {
		if err := engine.AddStream(s); err != nil {
			log.Fatal().Err(err).Str("stream", s.ID()).Msg("register stream")
		}
	}

	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start engine")
	}
	log.Info().Int("streams", len(streams)).Msg("fusion engine started")

	run(ctx, engine, cfg.App.StatsEvery(), log)

	log.Info().Msg("shutting down")
	if err := engine.Close(); err != nil {
		log.Error().Err(err).Msg("close engine")
	}
}

// run blocks until ctx ends, logging engine stats every interval when positive.
func run(ctx context.Context, engine *fusion.Engine, every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logStats(log, engine.Stats())
		}
	}
}

func logStats(log zerolog.Logger, st fusion.Stats) {
	evt := log.Info().
		Uint64("fusions", st.FusionCount).
		Uint64("loop_errors", st.LoopErrors).
		Int("buffered_events", st.Aligner.TotalBuffered).
		Int("snapshots", st.Buffer.Size).
		Float64("buffer_utilization", st.Buffer.Utilization)
	for id, s := range st.Streams {
		evt = evt.Str("stream_"+id, s.Status.String())
	}
	evt.Msg("engine stats")
}
