package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/bidhaven-backend/pkg/enums"
	"github.com/angelmondragon/bidhaven-backend/pkg/outbox"
)

// ErrUnsupported is returned for an event type or envelope version that no
// decoder was registered for.
var ErrUnsupported = errors.New("unsupported event")

type decodeFunc func(json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders holds the payload versions a consumer understands.
type Decoders struct {
	mu    sync.RWMutex
	funcs map[decoderKey]decodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{funcs: make(map[decoderKey]decodeFunc)}
}

// Handle registers T as the payload of eventType at the given envelope version.
func Handle[T any](d *Decoders, eventType enums.OutboxEventType, version int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.funcs[decoderKey{eventType, version}] = func(raw json.RawMessage) (any, error) {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// Decode unpacks the envelope's data. Envelopes written before versioning
// carry version 0 and are read as version 1.
func (d *Decoders) Decode(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (any, error) {
	version := envelope.Version
	if version <= 0 {
		version = 1
	}
	d.mu.RLock()
	fn, ok := d.funcs[decoderKey{eventType, version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s@v%d", ErrUnsupported, eventType, version)
	}

	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%s@v%d: empty payload", eventType, version)
	}
	payload, err := fn(data)
	if err != nil {
		return nil, fmt.Errorf("%s@v%d: %w", eventType, version, err)
	}
	return payload, nil
}
