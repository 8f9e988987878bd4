package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// DecodeFunc turns an inbound message body into a typed value.
type DecodeFunc func(body json.RawMessage) (any, error)

// Decoders holds the decoders for inbound messages, keyed by message type
// and schema version.
type Decoders struct {
	mu    sync.RWMutex
	funcs map[string]DecodeFunc
}

func NewDecoders() *Decoders {
	return &Decoders{funcs: make(map[string]DecodeFunc)}
}

func decoderKey(messageType string, version int) string {
	return messageType + "/v" + strconv.Itoa(version)
}

// Register installs fn. Registering the same type and version twice is an
// error.
func (d *Decoders) Register(messageType string, version int, fn DecodeFunc) error {
	if fn == nil {
		return fmt.Errorf("nil decoder for %s", decoderKey(messageType, version))
	}
	key := decoderKey(messageType, version)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.funcs[key]; dup {
		return fmt.Errorf("decoder %s already registered", key)
	}
	d.funcs[key] = fn
	return nil
}

// Decode runs the matching decoder. A missing decoder is permanent.
func (d *Decoders) Decode(messageType string, version int, body json.RawMessage) (any, error) {
	key := decoderKey(messageType, version)
	d.mu.RLock()
	fn, ok := d.funcs[key]
	d.mu.RUnlock()
	if !ok {
		return nil, Permanent(fmt.Errorf("no decoder for %s", key))
	}
	return fn(body)
}
