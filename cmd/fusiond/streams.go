package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/calendar"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/config"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/exchange"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/news"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

// Stream ids used as fusion source names.
const (
	sourcePrice    = "price"
	sourceNews     = "news"
	sourceCalendar = "calendar"
)

// buildStreams constructs every enabled producer wrapped in a stream runner.
// The price stream is always present.
func buildStreams(cfg *config.Config, log zerolog.Logger) ([]stream.DataStream, error) {
	opts := cfg.Streams.Options()
	wrap := func(id string, p stream.Producer) stream.DataStream {
		return stream.New(id, p, log, opts...)
	}

	streams := []stream.DataStream{wrap(sourcePrice, newPriceProducer(cfg, log))}

	if cfg.News.Enabled {
		n := cfg.News
		streams = append(streams, wrap(sourceNews, news.NewProducer(sourceNews, news.Config{
			URL:               n.URL,
			APIKey:            n.APIKey,
			PollInterval:      n.PollInterval(),
			RequestsPerMinute: n.RequestsPerMinute,
			ItemsPath:         n.ItemsPath,
			IDPath:            n.IDPath,
			TitlePath:         n.TitlePath,
			PublishedPath:     n.PublishedPath,
			SourcePath:        n.SourcePath,
		}, log)))
	}

	if cfg.Calendar.Enabled {
		entries := make([]calendar.Entry, 0, len(cfg.Calendar.Events))
		for _, ce := range cfg.Calendar.Events {
			e, err := calendar.ParseEntry(ce.Name, ce.Currency, ce.Impact, ce.At, ce.Cron)
			if err != nil {
				return nil, fmt.Errorf("calendar: %w", err)
			}
			entries = append(entries, e)
		}
		streams = append(streams, wrap(sourceCalendar, calendar.NewProducer(sourceCalendar, entries, log,
			calendar.WithWarnBefore(time.Duration(cfg.Calendar.WarnBeforeS)*time.Second),
			calendar.WithCheckInterval(time.Duration(cfg.Calendar.CheckIntervalMs)*time.Millisecond),
		)))
	}
	return streams, nil
}

// newPriceProducer wires the configured feed. The feed channel keeps the
// producer's default backlog; the stream queue is sized separately.
func newPriceProducer(cfg *config.Config, log zerolog.Logger) *exchange.PriceProducer {
	feedOpts := []exchange.Option{
		exchange.WithDexScreenerConfig(cfg.Price.DexScreener.BaseURL, cfg.Price.DexScreener.DefaultChain),
	}
	if ms := cfg.Price.DexScreener.PollInterval; ms > 0 {
		feedOpts = append(feedOpts, exchange.WithPollInterval(time.Duration(ms)*time.Millisecond))
	}
	feed := exchange.NewFeed(cfg.Price.Provider, cfg.Price.Symbols, log.With().Str("source", sourcePrice).Logger(), feedOpts...)
	return exchange.NewPriceProducer(sourcePrice, feed, 0)
}
