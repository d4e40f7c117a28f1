package linkpreview

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
	"golang.org/x/sync/singleflight"
)

type cachedPreview struct {
	preview   *Preview
	expiresAt time.Time
}

// Manager resolves previews through an in-memory cache, the optional
// persistent store and finally the fetcher. Concurrent requests for the same
// URL share a single fetch.
type Manager struct {
	cfg     Config
	fetcher Fetcher
	store   *Store
	log     zerolog.Logger

	cache  *exsync.Map[string, cachedPreview]
	flight singleflight.Group
	cron   *cron.Cron
	now    func() time.Time
}

func NewManager(cfg Config, fetcher Fetcher, store *Store, log zerolog.Logger) *Manager {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg)
	}
	return &Manager{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		log:     log.With().Str("component", "link_preview").Logger(),
		cache:   exsync.NewMap[string, cachedPreview](),
		now:     time.Now,
	}
}

func (m *Manager) MaxURLs() int {
	return m.cfg.MaxURLs
}

// Get returns the preview for a single URL.
func (m *Manager) Get(ctx context.Context, rawURL string) (*Preview, error) {
	now := m.now()
	if cached, ok := m.cache.Get(rawURL); ok && now.Before(cached.expiresAt) {
		return cached.preview, nil
	}
	// A shared load must not be cancelled by one of its callers.
	loadCtx := context.WithoutCancel(ctx)
	ch := m.flight.DoChan(rawURL, func() (any, error) {
		return m.load(loadCtx, rawURL)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Preview), nil
	}
}

func (m *Manager) load(ctx context.Context, rawURL string) (*Preview, error) {
	log := m.log.With().Str("url", rawURL).Logger()
	if m.store != nil {
		preview, expiresAt, err := m.store.Get(ctx, rawURL, m.now())
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read cached preview")
		} else if preview != nil {
			m.remember(preview, expiresAt)
			return preview, nil
		}
	}

	fetchCtx := ctx
	if m.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, m.cfg.FetchTimeout)
		defer cancel()
	}
	preview, err := m.fetcher.Fetch(fetchCtx, rawURL)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to fetch preview")
		return nil, err
	}
	expiresAt := preview.FetchedAt.Add(m.cfg.CacheTTL)
	if preview.FetchedAt.IsZero() {
		expiresAt = m.now().Add(m.cfg.CacheTTL)
	}
	m.remember(preview, expiresAt)
	if m.store != nil {
		if err = m.store.Put(ctx, preview, expiresAt); err != nil {
			log.Warn().Err(err).Msg("Failed to store preview")
		}
	}
	return preview, nil
}

func (m *Manager) remember(preview *Preview, expiresAt time.Time) {
	m.cache.Set(preview.MatchedURL, cachedPreview{preview: preview, expiresAt: expiresAt})
}

// Previews fetches previews for the URLs in text in parallel. URLs that fail
// to resolve are left out, and the result keeps the order of the text.
func (m *Manager) Previews(ctx context.Context, text string) []*Preview {
	urls := ExtractURLs(text, m.cfg.MaxURLs)
	if len(urls) == 0 {
		return []*Preview{}
	}
	results := make([]*Preview, len(urls))
	var wg sync.WaitGroup
	for i, rawURL := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			preview, err := m.Get(ctx, rawURL)
			if err == nil {
				results[i] = preview
			}
		}()
	}
	wg.Wait()
	previews := make([]*Preview, 0, len(results))
	for _, preview := range results {
		if preview != nil {
			previews = append(previews, preview)
		}
	}
	return previews
}

// Cleanup drops expired entries from memory and the persistent store.
func (m *Manager) Cleanup(ctx context.Context) {
	now := m.now()
	evicted := 0
	for key, cached := range m.cache.CopyData() {
		if !now.Before(cached.expiresAt) {
			m.cache.Delete(key)
			evicted++
		}
	}
	var deleted int64
	if m.store != nil {
		var err error
		deleted, err = m.store.DeleteExpired(ctx, now)
		if err != nil {
			m.log.Warn().Err(err).Msg("Failed to delete expired previews")
		}
	}
	m.log.Debug().Int("evicted", evicted).Int64("deleted", deleted).Msg("Cleaned up link previews")
}

func (m *Manager) Start(ctx context.Context) error {
	schedule := m.cfg.CleanupSchedule
	if schedule == "" {
		schedule = DefaultConfig().CleanupSchedule
	}
	m.cron = cron.New()
	if _, err := m.cron.AddFunc(schedule, func() { m.Cleanup(ctx) }); err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}
