package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/ilanhub/internal/cache"
	"github.com/odvcencio/ilanhub/internal/models"
)

const (
	DefaultTTL = 10 * time.Minute

	generationKey = "catalog:generation"
)

// NodeSource loads the full category table.
type NodeSource interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
}

// Resolver answers tree queries from a cached copy of the category table.
// Cached entries are keyed by a generation stamp so Invalidate can drop every
// root at once, including on a shared Redis cache.
type Resolver struct {
	src     NodeSource
	cache   cache.Cache
	ttl     time.Duration
	group   singleflight.Group
	lookups *prometheus.CounterVec
}

func NewResolver(src NodeSource, c cache.Cache, ttl time.Duration) *Resolver {
	if c == nil {
		c = cache.NewMemory()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{src: src, cache: c, ttl: ttl}
}

// WithMetrics registers ilanhub_category_cache_total on reg.
func (r *Resolver) WithMetrics(reg prometheus.Registerer) *Resolver {
	r.lookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ilanhub",
		Name:      "category_cache_total",
		Help:      "Category descendant lookups by cache result.",
	}, []string{"result"})
	if reg != nil {
		reg.MustRegister(r.lookups)
	}
	return r
}

// AllChildCategoryIDs returns root and all of its descendants, root first.
func (r *Resolver) AllChildCategoryIDs(ctx context.Context, root int64) ([]int64, error) {
	key := r.key(ctx, "desc:"+strconv.FormatInt(root, 10))
	if data, ok, err := r.cache.Get(ctx, key); err != nil {
		slog.Warn("category cache get failed", "key", key, "error", err)
	} else if ok {
		var ids []int64
		if err := json.Unmarshal(data, &ids); err == nil && len(ids) > 0 {
			r.observe("hit")
			return ids, nil
		}
	}
	r.observe("miss")

	// The flight outlives any one caller, so it must not inherit the first
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		tree, err := r.Tree(flightCtx)
		if err != nil {
			return nil, err
		}
		ids := tree.Descendants(root)
		if data, err := json.Marshal(ids); err == nil {
			if err := r.cache.Set(flightCtx, key, data, r.ttl); err != nil {
				slog.Warn("category cache set failed", "key", key, "error", err)
			}
		}
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]int64)
	out := make([]int64, len(shared))
	copy(out, shared)
	return out, nil
}

// Ancestors returns the breadcrumb path for id.
func (r *Resolver) Ancestors(ctx context.Context, id int64) ([]int64, error) {
	tree, err := r.Tree(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Ancestors(id), nil
}

// Tree returns the current hierarchy, loading it from the source when the
// cached node list is missing or stale.
func (r *Resolver) Tree(ctx context.Context) (*Tree, error) {
	key := r.key(ctx, "nodes")
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var nodes []Node
		if err := json.Unmarshal(data, &nodes); err == nil {
			return BuildTree(nodes), nil
		}
	}
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(key, func() (any, error) {
		cats, err := r.src.ListCategories(flightCtx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		nodes := NodesFromCategories(cats)
		if data, err := json.Marshal(nodes); err == nil {
			if err := r.cache.Set(flightCtx, key, data, r.ttl); err != nil {
				slog.Warn("category cache set failed", "key", key, "error", err)
			}
		}
		return BuildTree(nodes), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tree), nil
}

// Invalidate drops every cached tree query. Call it after any category
// mutation. The old generation's node list is deleted right away; its
// descendant entries are unreachable and age out with the cache TTL.
func (r *Resolver) Invalidate(ctx context.Context) error {
	old := r.generation(ctx)
	stamp := strconv.FormatInt(time.Now().UnixNano(), 36)
	if err := r.cache.Set(ctx, generationKey, []byte(stamp), 0); err != nil {
		return fmt.Errorf("bump category cache generation: %w", err)
	}
	if err := r.cache.Delete(ctx, genKey(old, "nodes")); err != nil {
		slog.Warn("category cache delete failed", "generation", old, "error", err)
	}
	return nil
}

func (r *Resolver) generation(ctx context.Context) string {
	if data, ok, err := r.cache.Get(ctx, generationKey); err == nil && ok {
		return string(data)
	}
	return "0"
}

func (r *Resolver) key(ctx context.Context, suffix string) string {
	return genKey(r.generation(ctx), suffix)
}

func genKey(gen, suffix string) string {
	return "catalog:" + gen + ":" + suffix
}

func (r *Resolver) observe(result string) {
	if r.lookups != nil {
		r.lookups.WithLabelValues(result).Inc()
	}
}
