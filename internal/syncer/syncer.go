// Package syncer orchestrates one catalog sync run end to end: fetch,
// parse, archive, persist, report.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
	"github.com/alpinisme/formation-sync/internal/metrics"
)

// Config tunes the orchestrator.
type Config struct {
	// ChunkSize bounds each persistence transaction.
	ChunkSize int
}

// Syncer runs the sync pipeline. All timestamps within a run derive from a
// single clock reading so every record of the batch shares the same
// last_seen_at.
type Syncer struct {
	extractor course.Extractor
	store     course.Store
	archiver  course.Archiver
	pinger    course.Pinger
	clock     course.Clock
	chunkSize int
	logger    *zap.Logger
}

// New wires a Syncer from its collaborators.
func New(extractor course.Extractor, store course.Store, archiver course.Archiver, pinger course.Pinger, clock course.Clock, cfg Config, logger *zap.Logger) *Syncer {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 100
	}
	return &Syncer{
		extractor: extractor,
		store:     store,
		archiver:  archiver,
		pinger:    pinger,
		clock:     clock,
		chunkSize: chunk,
		logger:    logger,
	}
}

// Run executes one full sync. An extraction failure aborts the run; a
// failing chunk degrades to per-record writes so one bad record cannot
// sink its ninety-nine neighbours.
func (s *Syncer) Run(ctx context.Context) (course.SyncResult, error) {
	now := s.clock.Now()
	result := course.SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	logger := s.logger.With(zap.String("run_id", result.RunID))
	logger.Info("sync started")

	records, raw, err := s.extractor.Extract(ctx)
	if err != nil {
		result.Duration = s.clock.Now().Sub(now)
		metrics.ObserveSyncRun("error", 0, 0, result.Duration)
		s.pinger.Ping(ctx, false, fmt.Sprintf("extraction failed: %v", err))
		logger.Error("extraction failed", zap.Error(err))
		return result, fmt.Errorf("extract catalog: %w", err)
	}
	result.Total = len(records)
	logger.Info("extraction finished", zap.Int("records", len(records)))

	if uri, archiveErr := s.archiver.Archive(ctx, result.RunID, raw, now); archiveErr != nil {
		// Snapshots are forensic aids; losing one never fails the run.
		logger.Warn("snapshot archive failed", zap.Error(archiveErr))
	} else if uri != "" {
		logger.Debug("snapshot stored", zap.String("uri", uri))
	}

	if err := s.store.PreloadDimensions(ctx, records); err != nil {
		result.Duration = s.clock.Now().Sub(now)
		metrics.ObserveSyncRun("error", 0, 0, result.Duration)
		s.pinger.Ping(ctx, false, fmt.Sprintf("dimension preload failed: %v", err))
		return result, fmt.Errorf("preload dimensions: %w", err)
	}

	s.persist(ctx, records, now, &result, logger)

	result.Duration = s.clock.Now().Sub(now)
	outcome := "success"
	if result.Failed > 0 {
		outcome = "partial"
	}
	metrics.ObserveSyncRun(outcome, result.Succeeded, result.Failed, result.Duration)

	summary := fmt.Sprintf("synced %d/%d courses", result.Succeeded, result.Total)
	s.pinger.Ping(ctx, result.Failed == 0, summary)

	logger.Info("sync finished",
		zap.String("outcome", outcome),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// persist writes records chunk by chunk. When a chunk's transaction fails
// each of its records is retried individually, isolating the offenders.
func (s *Syncer) persist(ctx context.Context, records []course.Course, now time.Time, result *course.SyncResult, logger *zap.Logger) {
	for start := 0; start < len(records); start += s.chunkSize {
		end := min(start+s.chunkSize, len(records))
		chunk := records[start:end]

		err := s.store.UpsertChunk(ctx, chunk, now)
		if err == nil {
			result.Succeeded += len(chunk)
			continue
		}
		logger.Warn("chunk upsert failed, retrying records individually",
			zap.Int("chunk_start", start),
			zap.Int("chunk_size", len(chunk)),
			zap.Error(err),
		)

		for _, rec := range chunk {
			if err := s.store.UpsertOne(ctx, rec, now); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, course.RecordError{
					Reference: rec.Reference,
					Message:   err.Error(),
				})
				logger.Error("record upsert failed",
					zap.String("reference", rec.Reference),
					zap.Error(err),
				)
				continue
			}
			result.Succeeded++
		}
	}
}

// LastSyncTimestamp reports the most recent last_seen_at across all
// stored courses. The zero time means no sync has completed yet.
func (s *Syncer) LastSyncTimestamp(ctx context.Context) (time.Time, error) {
	return s.store.LastSeenAt(ctx)
}
