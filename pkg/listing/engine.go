// Package listing presents a flat blob namespace as a directory tree.
//
// The engine issues one prefix query per listing call and converts the
// returned keys into nodes on demand:
//   - Shallow listings report direct children and synthesize one directory
//     node per distinct first path segment below the prefix.
//   - Recursive listings pass every stored key through unchanged.
//
// A listing never fails. When the underlying prefix query errors, the
// sequence ends early and the cause is available from Listing.Err.
package listing

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/blobfs/pkg/provider"
)

// DefaultPageSize is the number of keys requested per prefix query page.
const DefaultPageSize = 1000

// Observer receives listing events. Implementations must be safe for
// concurrent use.
type Observer interface {
	PageFetched(recursive bool)
	NodeEmitted(kind Kind)
	ListingTruncated(err error)
}

// Config configures an Engine.
type Config struct {
	// PageSize is the MaxKeys value sent with every prefix query.
	// Zero uses DefaultPageSize.
	PageSize int

	// RateLimit caps prefix query pages per second across all listings of
	// this engine. Zero means unlimited.
	RateLimit float64

	// Logger receives truncation warnings. Nil disables logging.
	Logger *zap.Logger

	// Observer receives per-page and per-node events. Optional.
	Observer Observer
}

// Engine lists directories over a provider.Lister.
//
// Engine holds no per-listing state and is safe for concurrent use; every
// call to List gets its own directory deduplication set.
type Engine struct {
	lister   provider.Lister
	pageSize int
	limiter  *rate.Limiter
	log      *zap.Logger
	observer Observer
}

// New creates an engine over the given lister.
func New(lister provider.Lister, cfg Config) *Engine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		lister:   lister,
		pageSize: cfg.PageSize,
		log:      log,
		observer: cfg.Observer,
	}
	if cfg.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return e
}

// List starts a listing of basePath.
//
// basePath may be empty (container root) or any path; a path with no
// stored keys below it yields an empty listing. No request is made until
// the first call to Next.
func (e *Engine) List(ctx context.Context, basePath string, recursive bool) *Listing {
	return &Listing{
		engine:    e,
		ctx:       ctx,
		basePath:  basePath,
		prefix:    DirPrefix(basePath),
		recursive: recursive,
		emitted:   make(map[string]struct{}),
	}
}

// waitForRateLimit blocks until the rate limiter allows a request.
// Returns immediately if rate limiting is disabled.
func (e *Engine) waitForRateLimit(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}
