package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/ledgerloom/ledgerloom/internal/audit"
	"github.com/ledgerloom/ledgerloom/internal/calibrate"
	"github.com/ledgerloom/ledgerloom/internal/coldstart"
	"github.com/ledgerloom/ledgerloom/internal/config"
	"github.com/ledgerloom/ledgerloom/internal/engine"
	"github.com/ledgerloom/ledgerloom/internal/llm"
	"github.com/ledgerloom/ledgerloom/internal/metrics"
	"github.com/ledgerloom/ledgerloom/internal/rule"
	"github.com/ledgerloom/ledgerloom/internal/service"
	"github.com/ledgerloom/ledgerloom/internal/similarity"
	"github.com/ledgerloom/ledgerloom/internal/storage"
)

const defaultDBPath = "$HOME/.local/share/loom/loom.db"

// initStorage opens the database with proper path expansion and brings the
// schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	dbPath = config.ExpandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadRuleset loads the active ruleset, or an empty versioned set when no
// ruleset file is configured.
func loadRuleset() (*rule.Set, error) {
	path := viper.GetString("rules.path")
	if path == "" {
		slog.Warn("No ruleset configured; rule matching is disabled", "hint", "set rules.path")
		return &rule.Set{Version: "empty"}, nil
	}
	return rule.LoadFile(config.ExpandPath(path))
}

// buildEngine wires the full decision pipeline over the given storage.
func buildEngine(store service.Storage) (*engine.Engine, *rule.Matcher, error) {
	set, err := loadRuleset()
	if err != nil {
		return nil, nil, err
	}
	rules, err := rule.NewMatcher(set)
	if err != nil {
		return nil, nil, err
	}

	embedder := similarity.NewTrigramEmbedder()
	simMatcher := similarity.NewMatcher(store, embedder, similarity.DefaultConfig())

	var fallback engine.FallbackSource
	if viper.GetBool("llm.enabled") {
		llmCfg, cfgErr := config.LoadLLMConfig()
		if cfgErr != nil {
			return nil, nil, cfgErr
		}
		classifier, llmErr := llm.NewFallbackClassifier(llmCfg, store, slog.Default())
		if llmErr != nil {
			return nil, nil, fmt.Errorf("failed to create fallback classifier: %w", llmErr)
		}
		fallback = classifier
	} else {
		slog.Info("Fallback classifier disabled; rules and similarity only")
	}

	breakerCfg := config.LoadBreakerSettings()
	breaker := engine.NewBreaker(breakerCfg.MaxCalls, breakerCfg.MaxCents, breakerCfg.Cooldown)

	calibrators := calibrate.NewStore(store, 5*time.Minute)
	tracker := coldstart.NewTracker(store, embedder, config.ColdStartRequiredN())
	recorder := audit.NewRecorder(store, slog.Default())

	anomalyMultiple := viper.GetFloat64("anomaly.multiple")
	if anomalyMultiple <= 0 {
		anomalyMultiple = 5.0
	}
	anomalies := engine.NewMedianAnomalyChecker(store, anomalyMultiple)

	deps := engine.Deps{
		Rules:       rules,
		Similarity:  simMatcher,
		Fallback:    fallback,
		Breaker:     breaker,
		Calibrators: calibrators,
		ColdStart:   tracker,
		Anomalies:   anomalies,
		Recorder:    recorder,
		Accounts:    store,
		Metrics:     metrics.New(prometheus.NewRegistry()),
	}

	eng, err := engine.New(config.LoadEngineConfig(), deps, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return eng, rules, nil
}
