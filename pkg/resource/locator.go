package resource

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/albertocavalcante/assetpipe/internal/log"
	"github.com/albertocavalcante/assetpipe/internal/metrics"
	"github.com/albertocavalcante/assetpipe/pkg/util"
)

// Locator maps resource ids to the provider that owns them.
//
// An id is owned by the provider with the strictly highest priority among
// those listing it; on a tie the first registered keeps it. Ids nobody
// claims fall back to the owner of Wildcard.
type Locator struct {
	mu        sync.RWMutex
	providers []Provider
	owners    map[string]Provider
	logger    *zap.SugaredLogger
	metrics   *metrics.Resolve
}

// Option configures a Locator.
type Option func(*Locator)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(loc *Locator) { loc.logger = l }
}

// WithMetrics enables lookup metrics.
func WithMetrics(m *metrics.Resolve) Option {
	return func(loc *Locator) { loc.metrics = m }
}

// NewLocator creates an empty locator.
func NewLocator(opts ...Option) *Locator {
	l := &Locator{
		owners: make(map[string]Provider),
		logger: log.Component("resource"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add registers a provider and claims each of its ids it outranks.
func (l *Locator) Add(p Provider) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.providers = append(l.providers, p)
	claimed := 0
	for _, id := range p.ResourceList() {
		cur, ok := l.owners[id]
		if ok && p.Priority() <= cur.Priority() {
			continue
		}
		l.owners[id] = p
		claimed++
	}
	l.logger.Debugw("provider added", "type", fmt.Sprintf("%T", p), "priority", p.Priority(), "claimed", claimed)
}

// AddFileSystem registers a filesystem provider rooted at root.
func (l *Locator) AddFileSystem(root string, priority int32) error {
	p, err := NewFileSystemProvider(root, priority)
	if err != nil {
		return err
	}
	l.Add(p)
	return nil
}

// owner returns the provider for id and whether it came from the fallback.
func (l *Locator) owner(id string) (Provider, bool, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.owners[id]; ok {
		return p, false, true
	}
	if p, ok := l.owners[Wildcard]; ok {
		return p, true, true
	}
	return nil, false, false
}

// Owner returns the provider that would serve id.
func (l *Locator) Owner(id string) (Provider, bool) {
	p, _, ok := l.owner(id)
	return p, ok
}

// Resolve returns the data for id from its owner, or from the fallback.
func (l *Locator) Resolve(id string, stream bool) (Data, error) {
	p, fallback, ok := l.owner(id)
	if !ok {
		l.metrics.Lookup(metrics.LookupMissing)
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}

	d, err := p.Get(id, stream)
	if err != nil {
		l.metrics.Lookup(metrics.LookupError)
		return nil, fmt.Errorf("%w: %s: %w", ErrResourceNotFound, id, err)
	}
	if d == nil {
		l.metrics.Lookup(metrics.LookupMissing)
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, id)
	}

	if fallback {
		l.metrics.Lookup(metrics.LookupFallback)
	} else {
		l.metrics.Lookup(metrics.LookupExact)
	}
	log.TraceTo(l.logger, "resource resolved", "id", id, "stream", stream, "fallback", fallback)
	return d, nil
}

// Static resolves id as fully loaded data.
func (l *Locator) Static(id string) (*StaticData, error) {
	d, err := l.Resolve(id, false)
	if err != nil {
		return nil, err
	}
	s, ok := d.(*StaticData)
	if !ok {
		closeData(d)
		return nil, fmt.Errorf("%w: %s: want static data, got %T", ErrResourceTypeMismatch, id, d)
	}
	return s, nil
}

// Stream resolves id as a stream. The caller must close it.
func (l *Locator) Stream(id string) (*StreamData, error) {
	d, err := l.Resolve(id, true)
	if err != nil {
		return nil, err
	}
	s, ok := d.(*StreamData)
	if !ok {
		closeData(d)
		return nil, fmt.Errorf("%w: %s: want stream data, got %T", ErrResourceTypeMismatch, id, d)
	}
	return s, nil
}

// Timestamp returns the modification time of id, or the zero time when no
// provider claims it.
func (l *Locator) Timestamp(id string) time.Time {
	p, _, ok := l.owner(id)
	if !ok {
		return time.Time{}
	}
	return p.Timestamp(id)
}

// Enumerate lists every id known to any provider that starts with prefix and
// ends with suffix, without Wildcard, deduplicated and sorted. With
// removePrefix set the prefix is stripped from each result.
func (l *Locator) Enumerate(prefix string, removePrefix bool, suffix string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, p := range l.providers {
		for _, id := range p.ResourceList() {
			if id == Wildcard || !strings.HasPrefix(id, prefix) || !strings.HasSuffix(id, suffix) {
				continue
			}
			if removePrefix {
				id = id[len(prefix):]
			}
			seen[id] = struct{}{}
		}
	}
	return util.SortedKeys(seen)
}

// Providers returns the registered providers in registration order.
func (l *Locator) Providers() []Provider {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Provider, len(l.providers))
	copy(out, l.providers)
	return out
}

// Close closes every provider that holds resources.
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	for _, p := range l.providers {
		if c, ok := p.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

func closeData(d Data) {
	if c, ok := d.(io.Closer); ok {
		_ = c.Close()
	}
}
