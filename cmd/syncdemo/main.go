// Command syncdemo runs a complete reconciliation pass between two
// reading platforms and streams the emitted events over WebSocket.
//
// Environment:
//
//	SHELFSYNC_CONFIG   optional path to a YAML/JSON config file
//	SHELFSYNC_DB       optional SQLite DSN, in-memory store when unset
//	SHELFSYNC_WS_ADDR  optional listen address for the event stream
//	LOG_LEVEL, LOG_FORMAT  structured logging settings
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/shelfsync/shelfsync"
	"github.com/shelfsync/shelfsync/config"
	"github.com/shelfsync/shelfsync/eventbus"
	"github.com/shelfsync/shelfsync/logging"
	"github.com/shelfsync/shelfsync/record"
	"github.com/shelfsync/shelfsync/storage/memory"
	"github.com/shelfsync/shelfsync/storage/sqlite"
)

func main() {
	// A missing .env file is fine, the environment wins either way.
	_ = godotenv.Load()

	logging.Init(logging.GetConfigFromEnv())

	if err := run(context.Background()); err != nil {
		logging.LogError(context.Background(), err, "syncdemo failed")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var opts []shelfsync.Option
	if path := os.Getenv("SHELFSYNC_CONFIG"); path != "" {
		cfg, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		opts = cfg.CoordinatorOptions()
		logging.Info("configuration loaded",
			slog.String("path", path),
			slog.String("name", cfg.Name),
		)
	}

	var storage shelfsync.Storage
	if dsn := os.Getenv("SHELFSYNC_DB"); dsn != "" {
		store, err := sqlite.NewWithDataSource(dsn)
		if err != nil {
			return err
		}
		storage = store
	} else {
		storage = memory.New()
	}

	bus := eventbus.New()
	defer bus.Close()

	if addr := os.Getenv("SHELFSYNC_WS_ADDR"); addr != "" {
		broadcaster := eventbus.NewBroadcaster(bus, logging.Default())
		defer broadcaster.Close()
		go func() {
			logging.Info("event stream listening", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, broadcaster); err != nil {
				logging.LogError(context.Background(), err, "event stream stopped")
			}
		}()
	}

	logEvents(bus)

	coordinator := shelfsync.NewCoordinator(storage, record.NewStructValidator(), bus, opts...)
	defer coordinator.Close()

	source := shelfsync.NewReadmooAdapter(sampleLibrary(80, time.Now()))
	target := shelfsync.NewStorageAdapter(storage)
	if err := target.Push(ctx, sampleLibrary(62, time.Now().Add(-3*time.Minute))); err != nil {
		return err
	}

	job, err := coordinator.InitializeSync(ctx, shelfsync.SyncRequest{
		SyncID:     uuid.NewString(),
		SourceType: source.Platform(),
		TargetType: target.Platform(),
		Scope:      []string{"library"},
		Strategy:   "auto",
	})
	if err != nil {
		return err
	}

	logging.Info("sync initialized",
		slog.String("sync_id", job.SyncID),
		slog.Duration("estimated_duration", job.EstimatedDuration),
	)

	sourceRecords, err := source.Fetch(ctx)
	if err != nil {
		return err
	}
	targetRecords, err := target.Fetch(ctx)
	if err != nil {
		return err
	}

	result, err := coordinator.ExecuteSync(ctx, job.SyncID, sourceRecords, targetRecords, shelfsync.ExecuteOptions{})
	if err != nil {
		return err
	}

	logging.Info("sync finished",
		slog.String("status", string(result.Status)),
		slog.Int("processed_records", result.ProcessedRecords),
		slog.Int("resolved", len(result.Resolved)),
		slog.Int("unresolved", len(result.Unresolved)),
		slog.Duration("duration", result.Duration),
	)

	snap := coordinator.Stats()
	logging.Info("coordinator stats",
		slog.Uint64("detections", snap.Detections),
		slog.Uint64("conflicts_found", snap.ConflictsFound),
		slog.Uint64("conflicts_resolved", snap.ConflictsResolved),
		slog.Uint64("jobs_completed", snap.JobsCompleted),
	)
	return nil
}

func logEvents(bus *eventbus.Bus) {
	for _, t := range []eventbus.EventType{
		eventbus.EventJobCompleted,
		eventbus.EventJobCancelled,
		eventbus.EventConflictDetected,
		eventbus.EventBatchCommitted,
	} {
		bus.On(t, func(ctx context.Context, ev eventbus.Event) {
			logging.Info("event", slog.String("type", string(ev.Type)), slog.Any("payload", ev.Payload))
		})
	}
}

func sampleLibrary(progress int, updated time.Time) []record.BookRecord {
	titles := []string{
		"The Left Hand of Darkness",
		"Dune Messiah",
		"A Wizard of Earthsea",
		"The Dispossessed",
	}

	out := make([]record.BookRecord, len(titles))
	for i, title := range titles {
		out[i] = record.BookRecord{
			ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(title)).String(),
			Title:       title,
			Progress:    progress,
			LastUpdated: updated,
		}
	}
	return out
}
