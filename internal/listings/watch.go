package listings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/bidhaven-backend/pkg/db/models"
	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
	"github.com/google/uuid"
)

// Snapshot is pushed to watchers after a committed change to a listing.
type Snapshot struct {
	Event   enums.OutboxEventType `json:"event"`
	Listing ListingView           `json:"listing"`
}

type watchBroker interface {
	WatchChannel(listingID string) string
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

// Watch fans listing changes out to subscribers over Redis pub/sub.
type Watch struct {
	broker watchBroker
	logg   *logger.Logger
	now    func() time.Time
}

// NewWatch builds a Watch.
func NewWatch(broker watchBroker, logg *logger.Logger) (*Watch, error) {
	if broker == nil {
		return nil, errors.New("watch broker required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Watch{broker: broker, logg: logg, now: time.Now}, nil
}

// Publish announces a change. Failures are logged and dropped.
func (w *Watch) Publish(ctx context.Context, event enums.OutboxEventType, listing models.Listing) {
	if w == nil {
		return
	}
	payload, err := json.Marshal(Snapshot{Event: event, Listing: NewListingView(listing, w.now())})
	if err != nil {
		w.logg.Error(w.logCtx(ctx, listing.ID), "encode listing snapshot", err)
		return
	}
	if err := w.broker.Publish(ctx, w.broker.WatchChannel(listing.ID.String()), payload); err != nil {
		w.logg.Error(w.logCtx(ctx, listing.ID), "publish listing snapshot", err)
	}
}

// Subscribe streams snapshots for one listing until ctx ends or stop is called.
func (w *Watch) Subscribe(ctx context.Context, listingID uuid.UUID) (<-chan Snapshot, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	raw, closeFn, err := w.broker.Subscribe(ctx, w.broker.WatchChannel(listingID.String()))
	if err != nil {
		cancel()
		return nil, nil, err
	}

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for {
			var payload []byte
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-raw:
				if !ok {
					return
				}
				payload = msg
			}

			var snap Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				w.logg.Warn(w.logCtx(ctx, listingID), "dropping malformed listing snapshot")
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := closeFn(); err != nil {
				w.logg.Warn(w.logCtx(context.Background(), listingID), "closing listing subscription failed")
			}
		})
	}
	return out, stop, nil
}

func (w *Watch) logCtx(ctx context.Context, listingID uuid.UUID) context.Context {
	return w.logg.WithListingID(ctx, listingID.String())
}
