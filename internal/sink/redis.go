package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"shuttletrack/internal/domain"
)

const (
	keyArrivalSeq    = "arrivals:seq"
	keySkipErrorSeq  = "skip_errors:seq"
	streamArrivals   = "arrivals:log"
	streamSkipErrors = "skip_errors:log"
)

// Redis is a durable sink backed by Redis streams. Sequence ids come
// from INCR counters; the arrival and skip-error entries are added in a
// single MULTI/EXEC pipeline so readers never observe a torn pair.
type Redis struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedis(addr, password string, db int, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Redis{
		client: client,
		prefix: "shuttletrack:",
		logger: logger.With("component", "redis_sink"),
	}, nil
}

func (s *Redis) Close() error {
	return s.client.Close()
}

func (s *Redis) key(k string) string {
	return s.prefix + k
}

func (s *Redis) Append(ctx context.Context, arrival domain.Arrival, skip *domain.SkipError) (Receipt, error) {
	now := time.Now()

	arrivalID, err := s.client.Incr(ctx, s.key(keyArrivalSeq)).Result()
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
	}
	arrival.ID = uint64(arrivalID)
	if arrival.RecordedAt.IsZero() {
		arrival.RecordedAt = now
	}

	receipt := Receipt{ArrivalID: arrival.ID}

	var skipRecord *domain.SkipError
	if skip != nil {
		skipID, err := s.client.Incr(ctx, s.key(keySkipErrorSeq)).Result()
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
		}
		record := *skip
		record.ID = uint64(skipID)
		if record.RecordedAt.IsZero() {
			record.RecordedAt = now
		}
		skipRecord = &record
		receipt.SkipErrorID = record.ID
	}

	arrivalJSON, err := json.Marshal(arrival)
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal arrival: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.key(streamArrivals),
		Values: map[string]interface{}{"id": arrival.ID, "record": arrivalJSON},
	})
	if skipRecord != nil {
		skipJSON, err := json.Marshal(skipRecord)
		if err != nil {
			return Receipt{}, fmt.Errorf("marshal skip error: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.key(streamSkipErrors),
			Values: map[string]interface{}{"id": skipRecord.ID, "record": skipJSON},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", domain.ErrSinkUnavailable, err)
	}

	s.logger.Debug("appended records",
		"arrival_id", receipt.ArrivalID,
		"skip_error_id", receipt.SkipErrorID,
	)
	return receipt, nil
}
