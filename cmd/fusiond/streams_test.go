package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/config"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/exchange"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/fusion"
)

func TestBuildStreamsHonoursEnabledFlags(t *testing.T) {
	cfg := &config.Config{
		Price:   config.Price{Provider: "stub", Symbols: []string{"EURUSD"}},
		Streams: config.Streams{QueueCapacity: 64},
	}
	streams, err := buildStreams(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildStreams: %v", err)
	}
	if len(streams) != 1 || streams[0].ID() != sourcePrice {
		t.Fatalf("expected only the price stream, got %d", len(streams))
	}
	if streams[0].Stats().QueueCapacity != 64 {
		t.Fatalf("stream options not applied")
	}

	cfg.News = config.News{Enabled: true, URL: "http://localhost"}
	cfg.Calendar = config.Calendar{Enabled: true, Events: []config.CalendarEntry{
		{Name: "nfp", Currency: "usd", Impact: "high", Cron: "30 12 * * 5"},
	}}
	streams, err = buildStreams(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildStreams: %v", err)
	}
	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID())
	}
	if strings.Join(ids, ",") != "price,news,calendar" {
		t.Fatalf("unexpected streams %v", ids)
	}
}

func TestBuildStreamsRejectsBadCalendarEntry(t *testing.T) {
	cfg := &config.Config{Calendar: config.Calendar{Enabled: true, Events: []config.CalendarEntry{{Name: "broken"}}}}
	if _, err := buildStreams(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected calendar parse error")
	}
}

func TestLogStats(t *testing.T) {
	var buf bytes.Buffer
	engine := fusion.NewEngine(fusion.DefaultConfig(), zerolog.Nop())
	logStats(zerolog.New(&buf), engine.Stats())
	if !strings.Contains(buf.String(), `"message":"engine stats"`) {
		t.Fatalf("unexpected stats line %q", buf.String())
	}
}

func TestPriceBacklogIndependentOfQueueCapacity(t *testing.T) {
	cfg := &config.Config{
		Price:   config.Price{Provider: "stub", Symbols: []string{"EURUSD"}},
		Streams: config.Streams{QueueCapacity: 7},
	}
	if got := newPriceProducer(cfg, zerolog.Nop()).Backlog(); got != exchange.DefaultBacklog {
		t.Fatalf("expected default backlog %d, got %d", exchange.DefaultBacklog, got)
	}
}
