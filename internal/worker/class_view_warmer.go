package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-timetable/internal/config"
	"github.com/stemsi/exstem-timetable/internal/model"
)

// ClassViewLoader rebuilds a class grid from storage and caches it.
type ClassViewLoader interface {
	RefreshClassView(ctx context.Context, term, className string) ([]model.ClassSlot, error)
}

// ClassViewWarmer listens on every class update channel and rebuilds the
// announced class grid so the next reader hits a warm cache.
type ClassViewWarmer struct {
	rdb    *redis.Client
	loader ClassViewLoader
	log    zerolog.Logger
}

// NewClassViewWarmer creates a new ClassViewWarmer.
func NewClassViewWarmer(rdb *redis.Client, loader ClassViewLoader, log zerolog.Logger) *ClassViewWarmer {
	return &ClassViewWarmer{
		rdb:    rdb,
		loader: loader,
		log:    log.With().Str("component", "class_view_warmer").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine; returns when ctx ends.
func (w *ClassViewWarmer) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	pubsub := w.rdb.PSubscribe(ctx, config.CacheKey.ClassUpdatesPattern())
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case msg, ok := <-messages:
			if !ok {
				w.log.Warn().Msg("Update channel closed")
				return
			}
			w.handle(ctx, msg.Payload)
		}
	}
}

func (w *ClassViewWarmer) handle(ctx context.Context, payload string) {
	var update model.ClassUpdate
	if err := json.Unmarshal([]byte(payload), &update); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error")
		return
	}
	if update.Term == "" || update.ClassName == "" {
		return
	}

	start := time.Now()
	slots, err := w.loader.RefreshClassView(ctx, update.Term, update.ClassName)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).
				Str("term", update.Term).
				Str("class", update.ClassName).
				Msg("Warm class view failed")
		}
		return
	}

	w.log.Debug().
		Str("term", update.Term).
		Str("class", update.ClassName).
		Int("slots", len(slots)).
		Dur("took", time.Since(start)).
		Msg("Class view warmed")
}
