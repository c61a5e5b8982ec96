package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-session/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-session/internal/entity"
)

const (
	matchKeyPrefix = "match:"
	matchListKey   = "matches"

	// HistorySize is how many matches the recent list keeps.
	HistorySize = 100
)

type MatchRepository interface {
	Save(ctx context.Context, record *entity.MatchRecord) error
	GetByID(ctx context.Context, id string) (*entity.MatchRecord, error)
	List(ctx context.Context, limit int) ([]*entity.MatchRecord, error)
}

type dbMatch struct {
	client *redis.Client
}

func NewMatchRepository(client *redis.Client) MatchRepository {
	return &dbMatch{
		client: client,
	}
}

// Save - stores record under match:<id> and pushes the id onto the recent list.
func (that *dbMatch) Save(ctx context.Context, record *entity.MatchRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: match id is empty", apperror.ErrInvalidRecord)
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, matchKeyPrefix+record.ID, recordJSON, 0)
		pipe.LPush(ctx, matchListKey, record.ID)
		pipe.LTrim(ctx, matchListKey, 0, HistorySize-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save match: %w", err)
	}

	return nil
}

func (that *dbMatch) GetByID(ctx context.Context, id string) (*entity.MatchRecord, error) {
	response, err := that.client.Get(ctx, matchKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get match by id: %w", err)
	}

	var record entity.MatchRecord
	if err = json.Unmarshal([]byte(response), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	return &record, nil
}

// List - the most recent matches first, at most limit of them. Ids whose record has expired are skipped.
func (that *dbMatch) List(ctx context.Context, limit int) ([]*entity.MatchRecord, error) {
	if limit <= 0 || limit > HistorySize {
		limit = HistorySize
	}

	ids, err := that.client.LRange(ctx, matchListKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	records := make([]*entity.MatchRecord, 0, len(ids))
	for _, id := range ids {
		record, err := that.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

type nopMatch struct{}

// NewNopMatchRepository - a repository that stores nothing, used when the archive is disabled.
func NewNopMatchRepository() MatchRepository {
	return nopMatch{}
}

func (nopMatch) Save(context.Context, *entity.MatchRecord) error {
	return nil
}

func (nopMatch) GetByID(context.Context, string) (*entity.MatchRecord, error) {
	return nil, apperror.ErrNotFound
}

func (nopMatch) List(context.Context, int) ([]*entity.MatchRecord, error) {
	return []*entity.MatchRecord{}, nil
}
