package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/totegamma/concrnt-parallel/internal/domain"
)

// EventChannel is the redis channel index events are published on.
const EventChannel = "parallel:events"

// SignalService fans index events out through redis pub/sub.
type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event domain.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, EventChannel, jsonstr).Err()
}

// Realtime forwards events whose url starts with one of the listened
// prefixes to output. Every value read from input replaces the prefixes.
// It returns when ctx is done, input is closed or the subscription fails, and
// closes output on return.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- domain.Event) {
	defer close(output)

	pubsub := s.rdb.Subscribe(ctx, EventChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to subscribe",
			slog.String("error", err.Error()),
			slog.String("module", "signal"),
		)
		return
	}

	var prefixes []string
	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-input:
			if !ok {
				return
			}
			prefixes = next
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event domain.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.WarnContext(ctx, "malformed event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			if !matchesAny(event.URL, prefixes) {
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

func matchesAny(url string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
