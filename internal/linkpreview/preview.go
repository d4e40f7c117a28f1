package linkpreview

import (
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"maunium.net/go/mautrix/event"
	"mvdan.cc/xurls/v2"
)

var (
	ErrBlockedURL = errors.New("url is not allowed")
	ErrNotHTML    = errors.New("unsupported content type")
)

type Config struct {
	MaxURLs           int
	FetchTimeout      time.Duration
	MaxPageBytes      int64
	CacheTTL          time.Duration
	CleanupSchedule   string
	AllowPrivateHosts bool
}

func DefaultConfig() Config {
	return Config{
		MaxURLs:         3,
		FetchTimeout:    10 * time.Second,
		MaxPageBytes:    10 * 1024 * 1024,
		CacheTTL:        time.Hour,
		CleanupSchedule: "@every 10m",
	}
}

type Preview struct {
	MatchedURL   string    `json:"matchedURL"`
	CanonicalURL string    `json:"canonicalURL,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	SiteName     string    `json:"siteName,omitempty"`
	Type         string    `json:"type,omitempty"`
	ImageURL     string    `json:"imageURL,omitempty"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// ToBeeper converts the preview to the com.beeper.linkpreviews format. The
// image is left out since it has not been uploaded to the media repo.
func (p *Preview) ToBeeper() *event.BeeperLinkPreview {
	return &event.BeeperLinkPreview{
		LinkPreview: event.LinkPreview{
			CanonicalURL: p.CanonicalURL,
			Title:        p.Title,
			Type:         p.Type,
			Description:  p.Description,
			SiteName:     p.SiteName,
		},
		MatchedURL: p.MatchedURL,
	}
}

var urlMatcher = xurls.Strict()

// ExtractURLs returns up to maxURLs unique http(s) URLs found in text.
func ExtractURLs(text string, maxURLs int) []string {
	if maxURLs <= 0 {
		return nil
	}
	matches := urlMatcher.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var urls []string
	for _, match := range matches {
		cleaned := strings.TrimRight(match, ".,;:!?")
		parsed, err := url.Parse(cleaned)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			continue
		}
		if _, ok := seen[cleaned]; ok {
			continue
		}
		seen[cleaned] = struct{}{}
		urls = append(urls, cleaned)
		if len(urls) >= maxURLs {
			break
		}
	}
	return urls
}

func isAllowedURL(parsed *url.URL, allowPrivate bool) bool {
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(parsed.Hostname()), ".")
	if host == "" {
		return false
	}
	if allowPrivate {
		return true
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return false
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return false
	}
	return true
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
