// Package scrape downloads program pages and stores their text as PDFs for ingestion.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"coursematch/src/fsutil"
	"coursematch/src/log"
)

const (
	// UserAgent mimics a desktop browser; some program sites reject default clients.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.3"

	DefaultURLFile     = "codes.xlsx"
	DefaultOutputDir   = "downloaded_pdfs"
	DefaultConcurrency = 4
	DefaultTimeout     = 30 * time.Second
)

type Config struct {
	OutputDir   string
	Concurrency int
	Timeout     time.Duration
	// Progress, when set, is called once per finished URL.
	Progress func()
}

// Report lists what a run produced. Failures are per URL and never stop the run.
type Report struct {
	Written []string
	Failed  map[string]error
}

type Scraper struct {
	client *resty.Client
	fs     fsutil.FileStore
	cfg    Config
}

func New(fs fsutil.FileStore, cfg Config) *Scraper {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if fs == nil {
		fs = fsutil.NewLocalFileStore()
	}
	client := resty.New().
		SetHeader("User-Agent", UserAgent).
		SetTimeout(cfg.Timeout)
	return &Scraper{client: client, fs: fs, cfg: cfg}
}

type fetched struct {
	page Page
	err  error
}

// Run fetches every URL, then writes one PDF per page in URL order. Pages are fetched
// concurrently; names are assigned sequentially so collisions resolve deterministically.
func (s *Scraper) Run(ctx context.Context, urls []string) (Report, error) {
	if err := s.fs.MakeDirectory(s.cfg.OutputDir); err != nil {
		return Report{}, fmt.Errorf("create %s: %w", s.cfg.OutputDir, err)
	}

	results := make([]fetched, len(urls))
	var progressMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, url := range urls {
		g.Go(func() error {
			page, err := s.Fetch(gctx, url)
			results[i] = fetched{page: page, err: err}
			if s.cfg.Progress != nil {
				progressMu.Lock()
				s.cfg.Progress()
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{Failed: map[string]error{}}
	names := newNamer()
	for i, url := range urls {
		r := results[i]
		if r.err != nil {
			log.Error(r.err, "error processing url", "url", url)
			report.Failed[url] = r.err
			continue
		}
		path := filepath.Join(s.cfg.OutputDir, names.next(FileName(r.page.Title))+".pdf")
		if err := s.write(path, r.page.Lines); err != nil {
			log.Error(err, "error writing pdf", "url", url, "path", path)
			report.Failed[url] = err
			continue
		}
		log.Info("created pdf", "url", url, "path", path, "lines", len(r.page.Lines))
		report.Written = append(report.Written, path)
	}
	return report, nil
}

// Fetch downloads and parses one page. A non-2xx status is an error.
func (s *Scraper) Fetch(ctx context.Context, url string) (Page, error) {
	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return Page{}, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status())
	}
	return Parse(bytes.NewReader(resp.Body()))
}

func (s *Scraper) write(path string, lines []string) error {
	data, err := RenderPDF(lines)
	if err != nil {
		return err
	}
	return s.fs.WriteFile(path, data)
}

type namer struct {
	seen map[string]int
}

func newNamer() *namer {
	return &namer{seen: map[string]int{}}
}

// next returns base, then base_2, base_3 and so on.
func (n *namer) next(base string) string {
	n.seen[base]++
	if c := n.seen[base]; c > 1 {
		name := base + "_" + strconv.Itoa(c)
		for n.seen[name] > 0 {
			c++
			name = base + "_" + strconv.Itoa(c)
		}
		n.seen[name]++
		return name
	}
	return base
}

// FileName derives a file stem from a page title: spaces become underscores, anything but
// letters, digits and underscores is dropped, and the result is capped at 50 characters.
func FileName(title string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.ReplaceAll(strings.TrimSpace(title), " ", "_") {
		if n == maxNameLen {
			break
		}
		if r == '_' || isAlnum(r) {
			b.WriteRune(r)
			n++
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

const maxNameLen = 50
