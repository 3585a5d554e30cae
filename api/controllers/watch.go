package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/bidhaven-backend/api/responses"
	"github.com/angelmondragon/bidhaven-backend/internal/listings"
	pkgerrors "github.com/angelmondragon/bidhaven-backend/pkg/errors"
	"github.com/angelmondragon/bidhaven-backend/pkg/logger"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = (watchPongWait * 9) / 10
)

// ListingWatcher streams committed changes for one listing.
type ListingWatcher interface {
	Subscribe(ctx context.Context, listingID uuid.UUID) (<-chan listings.Snapshot, func(), error)
}

type listingReader interface {
	Get(ctx context.Context, id uuid.UUID) (*listings.ListingView, error)
}

// Origins are enforced by the CORS middleware.
var watchUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WatchListing streams listing snapshots over a WebSocket. The first frame is
// the listing as currently stored; later frames follow each committed change.
func WatchListing(reader listingReader, watch ListingWatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil || watch == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing watch unavailable"))
			return
		}
		if _, err := requireCaller(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		current, err := reader.Get(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		ctx = logg.WithField(ctx, "listing_id", listingID.String())

		updates, stop, err := watch.Subscribe(ctx, listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to listing"))
			return
		}
		defer stop()

		conn, err := watchUpgrader.Upgrade(w, r, nil)
		if err != nil {
			logg.Warn(ctx, "listing watch upgrade failed")
			return
		}
		defer conn.Close()

		go readUntilClosed(conn, cancel)

		if err := writeSnapshot(conn, listings.Snapshot{Listing: *current}); err != nil {
			return
		}

		ticker := time.NewTicker(watchPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(watchWriteWait))
				return
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if err := writeSnapshot(conn, snap); err != nil {
					logg.Warn(ctx, "listing watch write failed")
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
					return
				}
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap listings.Snapshot) error {
	if err := conn.SetWriteDeadline(time.Now().Add(watchWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(snap)
}

// readUntilClosed drains client frames so pongs and close frames are processed.
func readUntilClosed(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	_ = conn.SetReadDeadline(time.Now().Add(watchPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
