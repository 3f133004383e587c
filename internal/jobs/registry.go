package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"actiond/internal/domain"
)

// ErrUnknownKind rejects submissions naming an unregistered action kind.
var ErrUnknownKind = errors.New("unknown action kind")

// Decoder builds one action from kind-specific JSON parameters.
type Decoder func(params json.RawMessage) (domain.Action, error)

// Registry maps action kind names to decoders.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates empty kind registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register binds kind to decoder, replacing any previous binding.
func (r *Registry) Register(kind string, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[kind] = decoder
}

// Decode builds action of kind from params.
// Params: kind name and raw JSON parameters.
// Returns: action or ErrUnknownKind/decode error.
func (r *Registry) Decode(kind string, params json.RawMessage) (domain.Action, error) {
	r.mu.RLock()
	decoder, ok := r.decoders[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	action, err := decoder(params)
	if err != nil {
		return nil, fmt.Errorf("decode %s params: %w", kind, err)
	}
	return action, nil
}

// Kinds lists registered kind names in order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.decoders))
	for kind := range r.decoders {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
