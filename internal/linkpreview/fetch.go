package linkpreview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyatlov/go-opengraph/opengraph"
)

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Preview, error)
}

type HTTPFetcher struct {
	cfg        Config
	httpClient *http.Client
}

var _ Fetcher = (*HTTPFetcher)(nil)

func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if !cfg.AllowPrivateHosts {
		dialer.Control = refusePrivateDial
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	if !cfg.AllowPrivateHosts {
		// Connecting through a proxy would hide the resolved target address.
		transport.Proxy = nil
	}
	return &HTTPFetcher{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.FetchTimeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				if !isAllowedURL(req.URL, cfg.AllowPrivateHosts) {
					return fmt.Errorf("%w: redirect to %s", ErrBlockedURL, req.URL.Host)
				}
				return nil
			},
		},
	}
}

// refusePrivateDial runs after name resolution, so it also catches hostnames
// that resolve to internal addresses.
func refusePrivateDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedURL, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("%w: %s connection to %s", ErrBlockedURL, network, address)
	}
	return nil
}

func (hf *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !isAllowedURL(parsedURL, hf.cfg.AllowPrivateHosts) {
		return nil, fmt.Errorf("%w: %s", ErrBlockedURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := hf.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return nil, fmt.Errorf("%w: %s", ErrNotHTML, contentType)
	}

	maxBytes := hf.cfg.MaxPageBytes
	if maxBytes <= 0 {
		maxBytes = DefaultConfig().MaxPageBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	preview, err := parsePreview(body, resp.Request.URL)
	if err != nil {
		return nil, err
	}
	preview.MatchedURL = rawURL
	return preview, nil
}

func parsePreview(body []byte, pageURL *url.URL) (*Preview, error) {
	og := opengraph.NewOpenGraph()
	if err := og.ProcessHTML(bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("failed to parse OpenGraph: %w", err)
	}
	if og.Title == "" || og.Description == "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err == nil {
			if og.Title == "" {
				og.Title = extractTitle(doc)
			}
			if og.Description == "" {
				og.Description = extractDescription(doc)
			}
		}
	}

	preview := &Preview{
		CanonicalURL: og.URL,
		Title:        summarizeText(og.Title, 30, 150),
		Description:  summarizeText(og.Description, 50, 200),
		SiteName:     og.SiteName,
		Type:         og.Type,
		FetchedAt:    time.Now(),
	}
	if preview.CanonicalURL == "" {
		preview.CanonicalURL = pageURL.String()
	}
	if len(og.Images) > 0 && og.Images[0].URL != "" {
		if ref, err := url.Parse(og.Images[0].URL); err == nil {
			preview.ImageURL = pageURL.ResolveReference(ref).String()
		}
	}
	return preview, nil
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range []string{"title", "h1", "h2"} {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func extractDescription(doc *goquery.Document) string {
	if desc, exists := doc.Find("meta[name='description']").First().Attr("content"); exists && strings.TrimSpace(desc) != "" {
		return strings.TrimSpace(desc)
	}
	return strings.TrimSpace(doc.Find("p").First().Text())
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// summarizeText collapses whitespace and truncates text to maxWords and
// maxLength, preferring a word boundary.
func summarizeText(text string, maxWords, maxLength int) string {
	text = whitespaceRegex.ReplaceAllString(strings.TrimSpace(text), " ")
	if text == "" {
		return ""
	}
	words := strings.Fields(text)
	if len(words) > maxWords {
		text = strings.Join(words[:maxWords], " ")
	}
	if len(text) > maxLength {
		text = strings.ToValidUTF8(text[:maxLength], "")
		if lastSpace := strings.LastIndex(text, " "); lastSpace > maxLength/2 {
			text = text[:lastSpace]
		}
		text += "..."
	}
	return text
}
