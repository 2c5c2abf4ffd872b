package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"newsfromai/internal/domain/entity"
	"newsfromai/internal/infra/ai"
	"newsfromai/internal/repository"
	"newsfromai/internal/usecase/ingest"
)

/* ───── AI generator stub ───── */

// stubGenerator replays scripted replies per task and runs them through the
// real repair pipeline. A reply of errTransportReply yields a transport error.
type stubGenerator struct {
	mu       sync.Mutex
	replies  map[string][]string
	fallback map[string]string
	calls    map[string]int
	users    map[string][]string
}

const errTransportReply = "\x00transport"

func newStubGenerator() *stubGenerator {
	return &stubGenerator{
		replies:  make(map[string][]string),
		fallback: make(map[string]string),
		calls:    make(map[string]int),
		users:    make(map[string][]string),
	}
}

// script queues replies for task; once exhausted, always is returned.
func (g *stubGenerator) script(task string, always string, replies ...string) *stubGenerator {
	g.replies[task] = append(g.replies[task], replies...)
	g.fallback[task] = always
	return g
}

func (g *stubGenerator) next(task ai.TaskConfig, user string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[task.Name]++
	g.users[task.Name] = append(g.users[task.Name], user)
	if q := g.replies[task.Name]; len(q) > 0 {
		g.replies[task.Name] = q[1:]
		return q[0]
	}
	return g.fallback[task.Name]
}

func (g *stubGenerator) Generate(_ context.Context, task ai.TaskConfig, _, user string) string {
	reply := g.next(task, user)
	if reply == errTransportReply {
		return ""
	}
	return reply
}

func (g *stubGenerator) GenerateShaped(_ context.Context, task ai.TaskConfig, _, user string, shape ai.Shape, allowOpaque bool) (ai.Repaired, error) {
	reply := g.next(task, user)
	if reply == errTransportReply {
		return ai.Repaired{}, fmt.Errorf("openai: HTTP 503: %w", entity.ErrTransport)
	}
	return ai.Repair(reply, shape, allowOpaque)
}

func (g *stubGenerator) Calls(task string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[task]
}

func (g *stubGenerator) LastUser(task string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.users[task]
	if len(u) == 0 {
		return ""
	}
	return u[len(u)-1]
}

/* ───── source reader stub ───── */

type stubReader struct {
	mu      sync.Mutex
	items   map[string][]entity.RawItem
	errs    map[string]error
	reqs    []ingest.SourceRequest
	blockCh chan struct{}
	entered chan struct{}
}

func newStubReader() *stubReader {
	return &stubReader{
		items: make(map[string][]entity.RawItem),
		errs:  make(map[string]error),
	}
}

func (r *stubReader) with(target string, items ...entity.RawItem) *stubReader {
	r.items[target] = append(r.items[target], items...)
	return r
}

func (r *stubReader) Read(ctx context.Context, req ingest.SourceRequest) ([]entity.RawItem, error) {
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	block, entered := r.blockCh, r.entered
	r.entered = nil
	r.mu.Unlock()

	if block != nil {
		if entered != nil {
			close(entered)
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := r.errs[req.Target]; err != nil {
		return nil, err
	}
	return append([]entity.RawItem(nil), r.items[req.Target]...), nil
}

/* ───── in-memory repositories ───── */

type memNews struct {
	mu        sync.Mutex
	records   []*entity.NewsRecord
	urls      map[string]int64
	guids     map[string]int64
	insertErr error
	batchErr  error
	nextID    int64
}

var _ repository.NewsRepository = (*memNews)(nil)

func newMemNews() *memNews {
	return &memNews{urls: make(map[string]int64), guids: make(map[string]int64)}
}

func guidKey(feedID int64, guid string) string {
	return fmt.Sprintf("%d|%s", feedID, guid)
}

func (m *memNews) ExistsByURL(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.urls[entity.NormalizeURL(url)]
	return ok, nil
}

func (m *memNews) ExistsByURLBatch(_ context.Context, urls []string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		_, ok := m.urls[entity.NormalizeURL(u)]
		out[u] = ok
	}
	return out, nil
}

func (m *memNews) ExistsByFeedGUID(_ context.Context, feedID int64, guid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.guids[guidKey(feedID, guid)]
	return ok, nil
}

func (m *memNews) Insert(_ context.Context, rec *entity.NewsRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	consumed := rec.ConsumedURLs()
	for _, u := range consumed {
		if _, ok := m.urls[u]; ok {
			return 0, fmt.Errorf("insert news: %w", entity.ErrAlreadyExists)
		}
	}
	if rec.FeedGUID != "" {
		if _, ok := m.guids[guidKey(rec.FeedID, rec.FeedGUID)]; ok {
			return 0, fmt.Errorf("insert news: %w", entity.ErrAlreadyExists)
		}
	}
	m.nextID++
	cp := *rec
	cp.ID = m.nextID
	m.records = append(m.records, &cp)
	for _, u := range consumed {
		m.urls[u] = cp.ID
	}
	if rec.FeedGUID != "" {
		m.guids[guidKey(rec.FeedID, rec.FeedGUID)] = cp.ID
	}
	return cp.ID, nil
}

func (m *memNews) ListRecent(_ context.Context, q repository.RecentQuery) ([]*entity.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.NewsRecord(nil), m.records...), nil
}

func (m *memNews) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func (m *memNews) all() []*entity.NewsRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*entity.NewsRecord(nil), m.records...)
}

type fetchOutcome struct {
	id      int64
	at      time.Time
	lastErr string
}

type memFeeds struct {
	mu      sync.Mutex
	feeds   []*entity.Feed
	fetches []fetchOutcome
	listErr error
}

var _ repository.FeedRepository = (*memFeeds)(nil)

func (m *memFeeds) List(context.Context) ([]*entity.Feed, error) {
	return m.feeds, nil
}

func (m *memFeeds) ListActive(context.Context) ([]*entity.Feed, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.Feed
	for _, f := range m.feeds {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFeeds) Upsert(_ context.Context, f *entity.Feed) (int64, error) {
	return 0, errors.New("not implemented")
}

func (m *memFeeds) RecordFetch(_ context.Context, id int64, at time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, fetchOutcome{id: id, at: at, lastErr: lastErr})
	return nil
}

/* ───── content fetcher stub ───── */

type stubContent struct {
	text  string
	err   error
	calls int
}

func (s *stubContent) FetchContent(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}
