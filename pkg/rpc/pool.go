package rpc

import (
	"math/rand/v2"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/thunderhead-labs/poktinfo/pkg/metrics"
	"github.com/thunderhead-labs/poktinfo/pkg/utils"
)

// Endpoint is a validated base URL and the height it reported when it was accepted.
type Endpoint struct {
	URL    string `json:"url"`
	Height uint64 `json:"height"`
}

// Pool is the set of endpoints calls are spread over. It only grows; entries are never
// revalidated. Safe for concurrent writers and readers.
type Pool struct {
	mu      sync.RWMutex
	urls    []string
	heights *xsync.Map[string, uint64]
}

// NewPool returns a pool seeded with urls. Seeded entries carry no observed height.
func NewPool(urls ...string) *Pool {
	p := &Pool{heights: xsync.NewMap[string, uint64]()}
	for _, u := range urls {
		p.Add(u, 0)
	}
	return p
}

// Add appends url. Adding a url twice keeps one entry and the latest height.
func (p *Pool) Add(url string, height uint64) {
	url = utils.EnsureTrailingSlash(url)
	if _, loaded := p.heights.LoadOrStore(url, height); loaded {
		p.heights.Store(url, height)
		return
	}

	p.mu.Lock()
	p.urls = append(p.urls, url)
	n := len(p.urls)
	p.mu.Unlock()

	metrics.PoolSize.Set(float64(n))
}

// Random returns a uniformly chosen endpoint, or false when the pool is empty.
func (p *Pool) Random() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.urls) == 0 {
		return "", false
	}
	return p.urls[rand.IntN(len(p.urls))], true
}

// URLs returns a copy of the endpoints in insertion order.
func (p *Pool) URLs() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

// Snapshot returns every endpoint with its observed height.
func (p *Pool) Snapshot() []Endpoint {
	urls := p.URLs()
	out := make([]Endpoint, 0, len(urls))
	for _, u := range urls {
		h, _ := p.heights.Load(u)
		out = append(out, Endpoint{URL: u, Height: h})
	}
	return out
}

// Len returns the number of endpoints in the pool.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.urls)
}
