package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mshq-dev/oraclectl/internal/auth"
	"github.com/mshq-dev/oraclectl/internal/cache"
	"github.com/mshq-dev/oraclectl/internal/compiled"
	"github.com/mshq-dev/oraclectl/internal/logging"
	"github.com/mshq-dev/oraclectl/internal/observability"
	"github.com/mshq-dev/oraclectl/internal/oracle"
	"github.com/mshq-dev/oraclectl/internal/rbxlx"
)

func main() {
	logging.ConfigureRuntime()
	auth.LoadDotenv()

	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "oraclectl: %v\n", err)
		os.Exit(2)
	}
	log.Logger = log.With().Str("run_id", uuid.NewString()).Logger()

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("oraclectl failed")
	}
}

func run(cfg cliConfig) error {
	key, err := auth.ResolveKey(cfg.key)
	if err != nil {
		return err
	}
	opts, err := loadOptions(cfg.optionsPath)
	if err != nil {
		return err
	}

	observability.RegisterMetrics()
	if cfg.metricsAddr != "" {
		go func() {
			if err := observability.ListenAndServe(cfg.metricsAddr); err != nil {
				log.Warn().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	store, err := openCache(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := oracle.Dial(cfg.endpoint, key, oracle.Config{Options: opts})
	if err != nil {
		return err
	}
	log.Info().Str("endpoint", cfg.endpoint).Msg("connected to oracle")

	if cfg.single {
		return runSingle(cfg, client)
	}
	return runDocument(cfg, client, store)
}

func openCache(cfg cliConfig) (cache.Store, error) {
	addr := cfg.redisAddr
	if addr == "" {
		addr = os.Getenv("ORACLE_REDIS_ADDR")
	}
	if addr == "" {
		return cache.Nop{}, nil
	}
	store, err := cache.NewRedis(addr, os.Getenv("ORACLE_REDIS_PASSWORD"), 0)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", addr).Msg("result cache enabled")
	return store, nil
}

// runDocument streams the whole input document through the pipeline.
func runDocument(cfg cliConfig, client *oracle.Client, store cache.Store) error {
	in, err := os.Open(cfg.input)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(cfg.output)
	if err != nil {
		return err
	}

	tracker := rbxlx.NewTracker()
	reporter := rbxlx.NewReporter(tracker, cfg.progressInterval)
	reporter.Start()
	defer reporter.Stop()

	err = rbxlx.Process(context.Background(), in, out, rbxlx.Config{
		Client:  client,
		Cache:   store,
		Tracker: tracker,
	})
	client.Close()
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	discovered, resolved, _ := tracker.Snapshot()
	log.Info().
		Uint64("discovered", discovered).
		Uint64("resolved", resolved).
		Str("output", cfg.output).
		Msg("document processed")
	return nil
}

// runSingle handles one isolated bytecode unit: extract, one submit-and-await,
// persist. A unit that carried the document marker convention keeps its
// header and payload above the decompiled source.
func runSingle(cfg cliConfig, client *oracle.Client) error {
	payload, header, err := compiled.FromFile(cfg.input)
	if err != nil {
		return err
	}

	source, err := client.DecompileSingle(payload)
	client.Close()
	if err != nil {
		return fmt.Errorf("decompile %s: %w", cfg.input, err)
	}

	text := source + "\n"
	if header != "" {
		text = header + payload + "\n\n" + source + "\n"
	}
	if err := os.WriteFile(cfg.output, []byte(text), 0o644); err != nil {
		return err
	}
	log.Info().Str("output", cfg.output).Int("bytes", len(text)).Msg("unit decompiled")
	return nil
}
