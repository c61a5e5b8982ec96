package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

const flushTimeout = 5 * time.Second

type matchRepository interface {
	Save(ctx context.Context, record *entity.MatchRecord) error
	GetByID(ctx context.Context, id string) (*entity.MatchRecord, error)
	List(ctx context.Context, limit int) ([]*entity.MatchRecord, error)
}

// MatchArchiver persists concluded matches in the background and serves the history back.
type MatchArchiver struct {
	logger *slog.Logger
	repo   matchRepository
	queue  chan entity.MatchRecord
}

func NewMatchArchiver(logger *slog.Logger, repo matchRepository, queueSize int) *MatchArchiver {
	if queueSize < 1 {
		queueSize = 1
	}

	return &MatchArchiver{
		logger: logger.With("component", "archiver"),
		repo:   repo,
		queue:  make(chan entity.MatchRecord, queueSize),
	}
}

// Record - queues record for saving without blocking. A full queue drops the record.
func (that *MatchArchiver) Record(record entity.MatchRecord) {
	if err := that.enqueue(record); err != nil {
		that.logger.Warn("dropping match record", "match", record.ID, "error", err)
	}
}

func (that *MatchArchiver) enqueue(record entity.MatchRecord) error {
	select {
	case that.queue <- record:
		return nil
	default:
		return apperror.ErrQueueFull
	}
}

// Run - saves queued records until ctx is cancelled, then flushes what is left.
func (that *MatchArchiver) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			defer cancel()

			that.flush(flushCtx)
			log.Info("archiver stopped")
			return nil
		case record := <-that.queue:
			that.save(ctx, record)
		}
	}
}

func (that *MatchArchiver) flush(ctx context.Context) {
	for {
		select {
		case record := <-that.queue:
			that.save(ctx, record)
		default:
			return
		}
	}
}

func (that *MatchArchiver) save(ctx context.Context, record entity.MatchRecord) {
	log := that.logger.With("method", "save")

	if err := that.repo.Save(ctx, &record); err != nil {
		log.Error("failed to save match", "match", record.ID, "error", err)
		return
	}

	log.Info("match archived", "match", record.ID, "conclusion", record.Conclusion.String())
}

// Recent - up to limit archived matches, newest first.
func (that *MatchArchiver) Recent(ctx context.Context, limit int) ([]*entity.MatchRecord, error) {
	records, err := that.repo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	return records, nil
}

func (that *MatchArchiver) Get(ctx context.Context, id string) (*entity.MatchRecord, error) {
	record, err := that.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}

	return record, nil
}
