package alerts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"actiond/internal/domain"
)

// ErrOddLength rejects flattened key/value input with a dangling key.
var ErrOddLength = errors.New("key/value list has odd length")

// Options configures alert registry.
// Params: generator URL base, expired-entry retention and duplicate hook.
// Returns: registry behaviour settings.
type Options struct {
	BaseURI       string
	RetainExpired time.Duration
	OnDuplicate   func()
	Logger        *slog.Logger
	Now           func() time.Time

	marshalSnapshot func(any) ([]byte, error)
}

// Registry deduplicates alerts by label set and expires them by TTL.
// Params: one mutex guarding alerts and cached snapshot.
// Returns: alert side channel independent of the action store.
type Registry struct {
	mu       sync.Mutex
	opts     Options
	nextID   uint64
	alerts   map[string]*domain.Alert
	snapshot string
}

// New creates alert registry.
// Params: options; zero Now defaults to time.Now.
// Returns: empty registry with "[]" snapshot.
func New(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.marshalSnapshot == nil {
		opts.marshalSnapshot = json.Marshal
	}
	return &Registry{
		opts:     opts,
		alerts:   make(map[string]*domain.Alert),
		snapshot: "[]",
	}
}

// Accept records alert or refreshes an existing one with equal labels.
// Params: flattened label and annotation pairs and time-to-live.
// Returns: true when label set was already known, or ErrOddLength.
func (r *Registry) Accept(labels, annotations []string, ttl time.Duration) (bool, error) {
	labelMap, err := pairs(labels)
	if err != nil {
		return false, fmt.Errorf("labels: %w", err)
	}
	annotationMap, err := pairs(annotations)
	if err != nil {
		return false, fmt.Errorf("annotations: %w", err)
	}
	key := identity(labelMap)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	if existing, ok := r.alerts[key]; ok {
		existing.Annotations = annotationMap
		existing.EndsAt = now.Add(ttl)
		if r.opts.OnDuplicate != nil {
			r.opts.OnDuplicate()
		}
		return true, nil
	}

	r.nextID++
	r.alerts[key] = &domain.Alert{
		ID:           r.nextID,
		Labels:       labelMap,
		Annotations:  annotationMap,
		StartsAt:     now,
		EndsAt:       now.Add(ttl),
		GeneratorURL: r.opts.BaseURI + "#alert-" + strconv.FormatUint(r.nextID, 10),
	}
	return false, nil
}

// Live returns unexpired alerts ordered by id.
// Params: none.
// Returns: copies safe for the caller to keep.
func (r *Registry) Live() []domain.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked(r.opts.Now())
}

// Each calls fn for every live alert or onEmpty when none is live.
// Params: per-alert consumer and empty callback.
// Returns: none.
func (r *Registry) Each(fn func(domain.Alert), onEmpty func()) {
	live := r.Live()
	if len(live) == 0 {
		if onEmpty != nil {
			onEmpty()
		}
		return
	}
	for _, alert := range live {
		fn(alert)
	}
}

// Refresh recomputes the cached JSON snapshot and compacts stale entries.
// Params: none.
// Returns: current snapshot; the previous one when serialization fails.
func (r *Registry) Refresh() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.opts.Now()
	if r.opts.RetainExpired > 0 {
		for key, alert := range r.alerts {
			if now.Sub(alert.EndsAt) >= r.opts.RetainExpired {
				delete(r.alerts, key)
			}
		}
	}

	raw, err := r.opts.marshalSnapshot(r.liveLocked(now))
	if err != nil {
		r.opts.Logger.Error("alert snapshot serialization failed", "error", err)
		return r.snapshot
	}
	r.snapshot = string(raw)
	return r.snapshot
}

// Snapshot returns the cached JSON snapshot.
func (r *Registry) Snapshot() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// Len returns number of retained alerts including expired ones.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func (r *Registry) liveLocked(now time.Time) []domain.Alert {
	out := make([]domain.Alert, 0, len(r.alerts))
	for _, alert := range r.alerts {
		if alert.Live(now) {
			out = append(out, cloneAlert(*alert))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneAlert(alert domain.Alert) domain.Alert {
	alert.Labels = cloneMap(alert.Labels)
	alert.Annotations = cloneMap(alert.Annotations)
	return alert
}

func cloneMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

// pairs turns a flattened key/value list into a map; later keys win.
func pairs(flat []string) (map[string]string, error) {
	if len(flat)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make(map[string]string, len(flat)/2)
	for index := 0; index < len(flat); index += 2 {
		out[flat[index]] = flat[index+1]
	}
	return out, nil
}

// identity renders sorted labels into a canonical key.
func identity(labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(strconv.Quote(name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(labels[name]))
		b.WriteByte('\n')
	}
	return b.String()
}
