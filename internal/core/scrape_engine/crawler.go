package scrape_engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const userAgent = "CadenceBot/1.0 (+content knowledge base)"

// Page is one crawled HTML page reduced to text.
type Page struct {
	URL   string
	Title string
	Text  string
}

// CrawlerConfig bounds a crawl.
type CrawlerConfig struct {
	MaxPages     int
	MaxBytes     int
	RatePerSec   float64
	FetchTimeout time.Duration
}

// Crawler walks same-host links breadth first from a seed URL.
type Crawler struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxPages int
	maxBytes int
}

func NewCrawler(cfg CrawlerConfig, client *http.Client) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 25
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 1500000
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	if client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Crawler{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		maxPages: cfg.MaxPages,
		maxBytes: cfg.MaxBytes,
	}
}

// Crawl calls visit for every page with text, in discovery order. It fails if
// the seed cannot be fetched or visit returns an error; other pages that fail
// to load are skipped.
func (c *Crawler) Crawl(ctx context.Context, seed string, visit func(Page) error) error {
	start, err := url.Parse(seed)
	if err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	host := strings.ToLower(start.Host)

	queue := []string{start.String()}
	seen := map[string]bool{start.String(): true}
	fetched := 0

	for len(queue) > 0 && fetched < c.maxPages {
		next := queue[0]
		queue = queue[1:]

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		page, links, err := c.fetch(ctx, next)
		if err != nil {
			if fetched == 0 {
				return fmt.Errorf("fetch seed %s: %w", next, err)
			}
			log.WithError(err).WithField("url", next).Debug("skipping page")
			continue
		}
		fetched++

		for _, l := range links {
			if l.Host != host || seen[l.String()] {
				continue
			}
			seen[l.String()] = true
			queue = append(queue, l.String())
		}

		if page.Text == "" {
			continue
		}
		if err := visit(page); err != nil {
			return err
		}
	}
	return nil
}

func (c *Crawler) fetch(ctx context.Context, pageURL string) (Page, []*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Page{}, nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return Page{}, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Page{}, nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Page{}, nil, fmt.Errorf("content type %q is not html", ct)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBytes)))
	if err != nil {
		return Page{}, nil, err
	}

	// Redirects may move us; resolve links against where we landed.
	base := resp.Request.URL
	title, text, links, err := extractHTML(body, base)
	if err != nil {
		return Page{}, nil, err
	}
	return Page{URL: base.String(), Title: title, Text: text}, links, nil
}

var blankLines = regexp.MustCompile(`\s*\n\s*`)

// extractHTML returns the page title, its visible text and its http(s) links
// with fragments stripped.
func extractHTML(body []byte, base *url.URL) (string, string, []*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", nil, err
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		u.Host = strings.ToLower(u.Host)
		links = append(links, u)
	})

	doc.Find("script, style, noscript, nav, footer, svg, iframe").Remove()

	var parts []string
	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	sel.Find("h1, h2, h3, h4, p, li, td, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		parts = append(parts, sel.Text())
	}
	text := strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(parts, "\n"), "\n"))
	return title, text, links, nil
}
