package linkpreview

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractURLs(t *testing.T) {
	got := ExtractURLs("see https://example.com/a, and http://example.org. Again https://example.com/a! ftp://x.org mailto:a@b.c", 5)
	assert.Equal(t, []string{"https://example.com/a", "http://example.org"}, got)

	assert.Equal(t, []string{"https://a.example"}, ExtractURLs("https://a.example https://b.example", 1))
	assert.Nil(t, ExtractURLs("no links here", 3))
	assert.Nil(t, ExtractURLs("https://a.example", 0))
}

func TestIsAllowedURL(t *testing.T) {
	tests := map[string]bool{
		"https://example.com":      true,
		"http://localhost:8080":    false,
		"http://app.localhost":     false,
		"http://127.0.0.1":         false,
		"http://10.1.2.3/admin":    false,
		"http://192.168.1.1":       false,
		"http://169.254.169.254":   false,
		"http://[::1]:80":          false,
		"http://localhost.:8080":   false,
		"http://0.0.0.0":           false,
		"http://93.184.216.34/":    true,
		"file:///etc/passwd":       false,
		"javascript:alert(1)":      false,
	}
	for raw, want := range tests {
		parsed, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, isAllowedURL(parsed, false), raw)
	}
	parsed, _ := url.Parse("http://127.0.0.1:1234")
	assert.True(t, isAllowedURL(parsed, true))
}

func TestSummarizeText(t *testing.T) {
	assert.Equal(t, "a b c", summarizeText("  a \n b\tc ", 10, 100))
	assert.Equal(t, "one two", summarizeText("one two three", 2, 100))
	assert.Equal(t, "aaaa bbbb...", summarizeText("aaaa bbbb cccc", 10, 11))
	assert.Empty(t, summarizeText("   ", 10, 100))
}

const testPage = `<!doctype html><html><head>
<title>Fallback title</title>
<meta property="og:title" content="OG Title">
<meta property="og:type" content="article">
<meta property="og:site_name" content="Example">
<meta property="og:image" content="/img/cover.png">
<meta name="description" content="Meta description">
</head><body><h1>Heading</h1><p>First paragraph.</p></body></html>`

func newPageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Plain   page </title></head><body><p>Only text.</p></body></html>`))
	})
	mux.HandleFunc("/image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AllowPrivateHosts = true
	cfg.FetchTimeout = 5 * time.Second
	return cfg
}

func TestHTTPFetcher(t *testing.T) {
	srv := newPageServer(t)
	fetcher := NewHTTPFetcher(testConfig())

	preview, err := fetcher.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/page", preview.MatchedURL)
	assert.Equal(t, srv.URL+"/page", preview.CanonicalURL)
	assert.Equal(t, "OG Title", preview.Title)
	assert.Equal(t, "Meta description", preview.Description)
	assert.Equal(t, "Example", preview.SiteName)
	assert.Equal(t, "article", preview.Type)
	assert.Equal(t, srv.URL+"/img/cover.png", preview.ImageURL)
	assert.False(t, preview.FetchedAt.IsZero())

	preview, err = fetcher.Fetch(context.Background(), srv.URL+"/plain")
	require.NoError(t, err)
	assert.Equal(t, "Plain page", preview.Title)
	assert.Equal(t, "Only text.", preview.Description)

	preview, err = fetcher.Fetch(context.Background(), srv.URL+"/redirect")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/redirect", preview.MatchedURL)
	assert.Equal(t, srv.URL+"/page", preview.CanonicalURL)
}

func TestHTTPFetcherErrors(t *testing.T) {
	srv := newPageServer(t)
	fetcher := NewHTTPFetcher(testConfig())

	_, err := fetcher.Fetch(context.Background(), srv.URL+"/image")
	assert.ErrorIs(t, err, ErrNotHTML)

	_, err = fetcher.Fetch(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = NewHTTPFetcher(DefaultConfig()).Fetch(context.Background(), srv.URL+"/page")
	assert.ErrorIs(t, err, ErrBlockedURL)
}

// resolveHost makes the fetcher connect to target whenever it dials host.
func resolveHost(fetcher *HTTPFetcher, host, target string) {
	transport := fetcher.httpClient.Transport.(*http.Transport)
	dial := transport.DialContext
	transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if h, _, _ := net.SplitHostPort(addr); h == host {
			addr = target
		}
		return dial(ctx, network, addr)
	}
}

func TestHTTPFetcherRefusesHostnamesResolvingToPrivateAddresses(t *testing.T) {
	srv := newPageServer(t)
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	pageURL := "http://internal.test:" + port + "/page"

	blocked := NewHTTPFetcher(DefaultConfig())
	resolveHost(blocked, "internal.test", srv.Listener.Addr().String())
	_, err = blocked.Fetch(context.Background(), pageURL)
	assert.ErrorIs(t, err, ErrBlockedURL)

	allowed := NewHTTPFetcher(testConfig())
	resolveHost(allowed, "internal.test", srv.Listener.Addr().String())
	preview, err := allowed.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "OG Title", preview.Title)
}

func TestRefusePrivateDial(t *testing.T) {
	for _, addr := range []string{"127.0.0.1:80", "10.0.0.5:443", "[::1]:80", "169.254.169.254:80", "0.0.0.0:80", "bogus"} {
		assert.ErrorIs(t, refusePrivateDial("tcp", addr, nil), ErrBlockedURL, addr)
	}
	assert.NoError(t, refusePrivateDial("tcp", "93.184.216.34:443", nil))
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "state", "previews.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.UnixMilli(1_700_000_000_000)
	preview := &Preview{
		MatchedURL:   "https://example.com",
		CanonicalURL: "https://example.com/",
		Title:        "Example",
		FetchedAt:    now,
	}
	require.NoError(t, store.Put(ctx, preview, now.Add(time.Hour)))

	got, expiresAt, err := store.Get(ctx, "https://example.com", now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Example", got.Title)
	assert.True(t, now.Equal(got.FetchedAt))
	assert.True(t, now.Add(time.Hour).Equal(expiresAt))

	got, _, err = store.Get(ctx, "https://example.com", now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, _, err = store.Get(ctx, "https://other.example", now)
	require.NoError(t, err)
	assert.Nil(t, got)

	preview.Title = "Updated"
	require.NoError(t, store.Put(ctx, preview, now.Add(time.Hour)))
	got, _, err = store.Get(ctx, "https://example.com", now)
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)

	deleted, err := store.DeleteExpired(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
}

type countingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (cf *countingFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	cf.calls.Add(1)
	if cf.release != nil {
		<-cf.release
	}
	if rawURL == "https://broken.example" {
		return nil, errors.New("boom")
	}
	return &Preview{MatchedURL: rawURL, Title: "title of " + rawURL, FetchedAt: time.Now()}, nil
}

func TestManagerPreviews(t *testing.T) {
	fetcher := &countingFetcher{}
	mgr := NewManager(testConfig(), fetcher, nil, zerolog.Nop())

	previews := mgr.Previews(context.Background(), "https://a.example https://broken.example https://b.example")
	require.Len(t, previews, 2)
	assert.Equal(t, "https://a.example", previews[0].MatchedURL)
	assert.Equal(t, "https://b.example", previews[1].MatchedURL)
	assert.EqualValues(t, 3, fetcher.calls.Load())

	previews = mgr.Previews(context.Background(), "again https://a.example")
	require.Len(t, previews, 1)
	assert.EqualValues(t, 3, fetcher.calls.Load())

	assert.Empty(t, mgr.Previews(context.Background(), "no links"))
}

func TestManagerSharesConcurrentFetches(t *testing.T) {
	fetcher := &countingFetcher{release: make(chan struct{})}
	mgr := NewManager(testConfig(), fetcher, nil, zerolog.Nop())

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			preview, err := mgr.Get(context.Background(), "https://a.example")
			assert.NoError(t, err)
			assert.Equal(t, "https://a.example", preview.MatchedURL)
		}()
	}
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

func TestManagerUsesStoreAndCleanup(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "previews.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fetcher := &countingFetcher{}
	first := NewManager(testConfig(), fetcher, store, zerolog.Nop())
	_, err = first.Get(ctx, "https://a.example")
	require.NoError(t, err)

	second := NewManager(testConfig(), fetcher, store, zerolog.Nop())
	preview, err := second.Get(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, "title of https://a.example", preview.Title)
	assert.EqualValues(t, 1, fetcher.calls.Load())

	second.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	second.Cleanup(ctx)
	assert.Zero(t, second.cache.Len())
	got, _, err := store.Get(ctx, "https://a.example", time.Now())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManagerKeepsStoredExpiry(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, filepath.Join(t.TempDir(), "previews.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	base := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, store.Put(ctx, &Preview{MatchedURL: "https://a.example", Title: "old", FetchedAt: base.Add(-time.Hour)}, base.Add(time.Minute)))

	fetcher := &countingFetcher{}
	mgr := NewManager(testConfig(), fetcher, store, zerolog.Nop())
	mgr.now = func() time.Time { return base }
	preview, err := mgr.Get(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, "old", preview.Title)
	assert.EqualValues(t, 0, fetcher.calls.Load())

	mgr.now = func() time.Time { return base.Add(30 * time.Minute) }
	preview, err = mgr.Get(ctx, "https://a.example")
	require.NoError(t, err)
	assert.Equal(t, "title of https://a.example", preview.Title)
	assert.EqualValues(t, 1, fetcher.calls.Load())
}

type blockingFetcher struct {
	started chan struct{}
	release chan struct{}
}

func (bf *blockingFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	close(bf.started)
	select {
	case <-bf.release:
		return &Preview{MatchedURL: rawURL, Title: "shared", FetchedAt: time.Now()}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestManagerSharedFetchSurvivesCancelledCaller(t *testing.T) {
	fetcher := &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
	mgr := NewManager(testConfig(), fetcher, nil, zerolog.Nop())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := mgr.Get(ctxA, "https://a.example")
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		preview *Preview
		err     error
	}
	resB := make(chan result, 1)
	go func() {
		preview, err := mgr.Get(context.Background(), "https://a.example")
		resB <- result{preview, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(fetcher.release)
	res := <-resB
	require.NoError(t, res.err)
	assert.Equal(t, "shared", res.preview.Title)
}

func TestManagerStartStop(t *testing.T) {
	mgr := NewManager(testConfig(), &countingFetcher{}, nil, zerolog.Nop())
	require.NoError(t, mgr.Start(context.Background()))
	mgr.Stop()

	cfg := testConfig()
	cfg.CleanupSchedule = "not a schedule"
	assert.Error(t, NewManager(cfg, &countingFetcher{}, nil, zerolog.Nop()).Start(context.Background()))
}

func TestToBeeper(t *testing.T) {
	preview := &Preview{MatchedURL: "https://a.example", CanonicalURL: "https://a.example/", Title: "A", SiteName: "Site"}
	bp := preview.ToBeeper()
	assert.Equal(t, "https://a.example", bp.MatchedURL)
	assert.Equal(t, "https://a.example/", bp.CanonicalURL)
	assert.Equal(t, "A", bp.Title)
	assert.Equal(t, "Site", bp.SiteName)
}
