package dataaccess

import (
	"github.com/devblac/batchtrace/internal/cache"
	"github.com/devblac/batchtrace/internal/events"
	"github.com/devblac/batchtrace/internal/ledger"
)

// Cache names, used as metric labels and in health output.
const (
	EntityCache    = "entity"
	LiveEventCache = "live-event"
	AggregateCache = "aggregate"
)

// Policies configures the three caches of a Registry.
type Policies struct {
	Entity    cache.Policy `yaml:"entity"`
	LiveEvent cache.Policy `yaml:"live_event"`
	Aggregate cache.Policy `yaml:"aggregate"`
}

// DefaultPolicies returns the entity, live-event and aggregate defaults.
func DefaultPolicies() Policies {
	return Policies{
		Entity:    cache.EntityPolicy,
		LiveEvent: cache.LiveEventPolicy,
		Aggregate: cache.AggregatePolicy,
	}
}

// Registry owns the named caches of one data-access service. Callers hold a
// Registry explicitly; there is no process-wide instance.
type Registry struct {
	Entities   *cache.Cache[ledger.Batch]
	LiveEvents *cache.Cache[[]events.Event]
	Aggregates *cache.Cache[[]ledger.Batch]
}

// NewRegistry builds the three caches. opts apply to each of them.
func NewRegistry(p Policies, opts ...cache.Option) *Registry {
	return &Registry{
		Entities:   cache.New[ledger.Batch](EntityCache, p.Entity, opts...),
		LiveEvents: cache.New[[]events.Event](LiveEventCache, p.LiveEvent, opts...),
		Aggregates: cache.New[[]ledger.Batch](AggregateCache, p.Aggregate, opts...),
	}
}

// Clear empties every cache.
func (r *Registry) Clear() {
	r.Entities.Clear()
	r.LiveEvents.Clear()
	r.Aggregates.Clear()
}

// Stats reports entry counts keyed by cache name.
func (r *Registry) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		EntityCache:    r.Entities.Stats(),
		LiveEventCache: r.LiveEvents.Stats(),
		AggregateCache: r.Aggregates.Stats(),
	}
}
