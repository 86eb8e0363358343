package listing

import (
	"context"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/blobfs/pkg/provider"
)

// Listing is a lazy, single-use sequence of nodes produced by Engine.List.
//
// Iterate with Next/Node, or range over All. A Listing is not safe for
// concurrent use; separate calls to Engine.List are independent.
//
//	l := engine.List(ctx, "photos", false)
//	for l.Next() {
//		fmt.Println(l.Node().Path)
//	}
//	if err := l.Err(); err != nil {
//		// the listing ended early
//	}
type Listing struct {
	engine    *Engine
	ctx       context.Context
	basePath  string
	prefix    string
	recursive bool

	// emitted holds synthesized directory paths already yielded by this
	// listing. It is never shared across listings.
	emitted map[string]struct{}

	page    []provider.ObjectSummary
	pos     int
	token   string
	fetched bool
	more    bool

	node  Node
	count int
	err   error
}

// Prefix returns the normalized key prefix this listing queries.
func (l *Listing) Prefix() string {
	return l.prefix
}

// Recursive reports whether this is a recursive listing.
func (l *Listing) Recursive() bool {
	return l.recursive
}

// Next advances to the next node. It returns false when the listing is
// exhausted or the prefix query failed; Err distinguishes the two.
func (l *Listing) Next() bool {
	for {
		for l.pos < len(l.page) {
			obj := l.page[l.pos]
			l.pos++

			n, ok := l.convert(obj)
			if !ok {
				continue
			}
			l.node = n
			l.count++
			if obs := l.engine.observer; obs != nil {
				obs.NodeEmitted(n.Kind)
			}
			return true
		}

		if !l.fetch() {
			l.page = nil
			return false
		}
	}
}

// Node returns the node produced by the last successful call to Next.
func (l *Listing) Node() Node {
	return l.node
}

// Err returns the error that ended the listing early, or nil if the
// listing ran to completion (or is still in progress).
func (l *Listing) Err() error {
	return l.err
}

// Count returns the number of nodes yielded so far.
func (l *Listing) Count() int {
	return l.count
}

// All returns the remaining nodes as a range-over-func sequence.
//
// Breaking out of the loop leaves the listing usable; a later Next
// continues where the loop stopped.
func (l *Listing) All() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for l.Next() {
			if !yield(l.node) {
				return
			}
		}
	}
}

// Collect drains the listing into a slice.
//
// The nodes yielded before a failure are returned together with the error.
func (l *Listing) Collect() ([]Node, error) {
	var nodes []Node
	for l.Next() {
		nodes = append(nodes, l.node)
	}
	return nodes, l.err
}

// fetch loads the next page from the provider.
func (l *Listing) fetch() bool {
	if l.fetched && !l.more {
		return false
	}
	if l.err != nil {
		return false
	}

	e := l.engine
	if err := e.waitForRateLimit(l.ctx); err != nil {
		l.truncate(err)
		return false
	}

	res, err := e.lister.List(l.ctx, provider.ListOptions{
		Prefix:            l.prefix,
		Recursive:         l.recursive,
		ContinuationToken: l.token,
		MaxKeys:           e.pageSize,
	})
	if err != nil {
		l.truncate(err)
		return false
	}
	if e.observer != nil {
		e.observer.PageFetched(l.recursive)
	}

	l.fetched = true
	l.page = res.Objects
	l.pos = 0
	l.token = res.ContinuationToken
	l.more = res.IsTruncated && res.ContinuationToken != ""
	return true
}

// truncate ends the listing after a failed prefix query.
func (l *Listing) truncate(err error) {
	l.err = err
	l.more = false
	l.fetched = true

	e := l.engine
	e.log.Warn("Listing truncated",
		zap.String("path", l.basePath),
		zap.String("prefix", l.prefix),
		zap.Bool("recursive", l.recursive),
		zap.Int("nodes_emitted", l.count),
		zap.Error(err),
	)
	if e.observer != nil {
		e.observer.ListingTruncated(err)
	}
}

// convert maps one listed object to the node it contributes, if any.
func (l *Listing) convert(obj provider.ObjectSummary) (Node, bool) {
	// The directory marker for the prefix itself is not one of its members.
	if obj.Key == l.prefix {
		return Node{}, false
	}
	if !strings.HasPrefix(obj.Key, l.prefix) {
		return Node{}, false
	}

	if l.recursive {
		return entryNode(obj), true
	}

	first, nested := splitFirst(obj.Key[len(l.prefix):])
	if !nested {
		return entryNode(obj), true
	}

	dir := l.prefix + first + Separator
	if _, seen := l.emitted[dir]; seen {
		return Node{}, false
	}
	l.emitted[dir] = struct{}{}
	return dirNode(dir), true
}
