package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/JustJay7/court-case-monitor/internal/apperr"
	"github.com/JustJay7/court-case-monitor/internal/cache"
	"github.com/JustJay7/court-case-monitor/internal/config"
	"github.com/JustJay7/court-case-monitor/internal/identifier"
	"github.com/JustJay7/court-case-monitor/pkg/logger"
)

// Source reports case details and the order listing for one case.
type Source interface {
	Fetch(ctx context.Context, id identifier.CaseIdentifier) (*cache.Snapshot, error)
}

// ErrCaptchaRejected is returned when every captcha attempt was refused.
var ErrCaptchaRejected = errors.New("captcha rejected")

const captchaAttempts = 3

// Scraper looks cases up by CNR on the eCourts case-status site with a
// headless browser.
type Scraper struct {
	cfg     *config.Config
	browser *rod.Browser
	mu      sync.Mutex
	logger  *logger.Logger
	parser  *Parser
	solver  CaptchaSolver
	now     func() time.Time
}

// NewScraper creates a scraper. The browser is launched on first use.
func NewScraper(cfg *config.Config, solver CaptchaSolver, log *logger.Logger) *Scraper {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scraper{
		cfg:    cfg,
		logger: log,
		parser: NewParser(log),
		solver: solver,
		now:    time.Now,
	}
}

func (s *Scraper) launch() error {
	if s.browser != nil {
		return nil
	}

	l := launcher.New().
		Headless(s.cfg.HeadlessMode).
		Set("user-agent", s.cfg.UserAgent).
		Set("disable-blink-features", "AutomationControlled").
		Delete("enable-automation")

	if s.cfg.BrowserPath != "" {
		l = l.Bin(s.cfg.BrowserPath)
	}
	if s.cfg.LogLevel == "debug" {
		l = l.Devtools(true)
	}

	browserURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(browserURL)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.browser = browser
	return nil
}

// Close closes the browser if it was launched.
func (s *Scraper) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

// Fetch runs one CNR search. Lookups are serialized over a single browser.
func (s *Scraper) Fetch(ctx context.Context, id identifier.CaseIdentifier) (*cache.Snapshot, error) {
	const op = "scraper.Fetch"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.launch(); err != nil {
		return nil, apperr.Wrap(apperr.KindExternalUnavailable, op, err)
	}

	page, err := s.newPage()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExternalUnavailable, op, err)
	}
	defer page.Close()

	searchCtx, cancel := context.WithTimeout(ctx, s.cfg.ScraperTimeout)
	defer cancel()
	page = page.Context(searchCtx)

	cnr := id.String()
	log := s.logger.With("cnr", cnr)

	for attempt := 1; attempt <= captchaAttempts; attempt++ {
		html, err := s.search(searchCtx, page, cnr)
		if err != nil {
			log.Error("Search failed", "attempt", attempt, "error", err)
			return nil, apperr.Wrap(apperr.KindExternalUnavailable, op, err)
		}

		msg := s.parser.ParseError(html)
		switch {
		case isCaptchaError(msg):
			log.Warn("CAPTCHA rejected", "attempt", attempt)
			s.refreshCaptcha(page)
			continue
		case isNotFound(msg):
			return nil, apperr.New(apperr.KindNotFound, op, "case not found at source")
		case msg != "":
			return nil, apperr.Wrapf(apperr.KindInvalidResponse, op, nil, "search error: %s", msg)
		}

		info, err := page.Info()
		pageURL := s.cfg.ECourtsURL
		if err == nil && info != nil {
			pageURL = info.URL
		}

		parsed, err := s.parser.Parse(html, pageURL)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInvalidResponse, op, err)
		}

		log.Info("Case fetched", "orders", len(parsed.Orders))
		return &cache.Snapshot{
			Details:   parsed.Details,
			Orders:    parsed.Orders,
			Raw:       html,
			FetchedAt: s.now(),
		}, nil
	}

	return nil, apperr.Wrap(apperr.KindExternalUnavailable, op, ErrCaptchaRejected)
}

func (s *Scraper) newPage() (*rod.Page, error) {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: 1920, Height: 1080, DeviceScaleFactor: 1}); err != nil {
		s.logger.Debug("Failed to set viewport", "error", err)
	}
	if _, err := page.SetExtraHeaders([]string{"Accept-Language", "en-US,en;q=0.9"}); err != nil {
		s.logger.Debug("Failed to set headers", "error", err)
	}
	return page, nil
}

// search submits the CNR form and returns the resulting page HTML.
func (s *Scraper) search(ctx context.Context, page *rod.Page, cnr string) (string, error) {
	s.logger.Debug("Navigating to case status page", "url", s.cfg.ECourtsURL)
	if err := page.Navigate(s.cfg.ECourtsURL); err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		s.logger.Warn("Page load timeout", "error", err)
	}

	input, err := page.Element("#cino, input[name='cino']")
	if err != nil {
		return "", fmt.Errorf("CNR input not found: %w", err)
	}
	if err := input.Input(cnr); err != nil {
		return "", fmt.Errorf("failed to enter CNR: %w", err)
	}

	if err := s.handleCaptcha(ctx, page); err != nil {
		return "", fmt.Errorf("captcha handling failed: %w", err)
	}

	submit, err := page.Element("#searchbtn, button[type='submit'], input[type='submit']")
	if err != nil {
		return "", fmt.Errorf("submit button not found: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return "", fmt.Errorf("failed to submit search: %w", err)
	}

	// Results render in place; wait for the case tables or an error box.
	if _, err := page.Timeout(15 * time.Second).Race().
		Element("table.case_details_table, table.order_table, #history_cnr").
		Element(".alert-danger, #errorMsg, #msg-danger, div.error").
		Do(); err != nil {
		s.logger.Debug("No result marker found", "error", err)
	}
	time.Sleep(time.Second)

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}
	return html, nil
}

func isCaptchaError(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "captcha")
}

func isNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range []string{"does not exist", "not found", "no record", "invalid case"} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
