// Package headless implements the browser capability on top of chromedp and
// headless Chrome. One Session owns one allocator with a primary results tab
// and at most one secondary detail tab.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

// Config controls session creation.
type Config struct {
	Headless  bool
	UserAgent string
}

// Session implements crawler.Browser with chromedp.
type Session struct {
	cfg    Config
	logger *zap.Logger

	allocCancel context.CancelFunc

	primary       context.Context
	primaryCancel context.CancelFunc

	tab       context.Context
	tabCancel context.CancelFunc
}

// Factory opens chromedp sessions configured per driver/device profile.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory builds a session factory.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession starts a fresh browser with the user agent matching the
// requested driver/device profile.
func (f *Factory) NewSession(ctx context.Context, driver, device string) (crawler.Browser, error) {
	cfg := f.cfg
	if cfg.UserAgent == "" {
		cfg.UserAgent = ProfileUserAgent(driver, device)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	primary, primaryCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		cfg:           cfg,
		logger:        f.logger,
		allocCancel:   allocCancel,
		primary:       primary,
		primaryCancel: primaryCancel,
	}

	// Starting the browser eagerly surfaces launch failures here instead of
	// at the first navigation.
	if err := chromedp.Run(primary, s.networkSetup()); err != nil {
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	return s, nil
}

func (s *Session) networkSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(s.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// current returns the active browsing context, preferring the detail tab.
func (s *Session) current() context.Context {
	if s.tab != nil {
		return s.tab
	}
	return s.primary
}

// Navigate loads a URL in the primary tab and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.primary, 0,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// elementsScript extracts text and href for every selector match.
const elementsScript = `Array.from(document.querySelectorAll(%q)).map(function(el) {
	return {text: el.innerText, href: el.href || ""};
})`

// Elements waits for the selector and returns each match's text and href.
func (s *Session) Elements(ctx context.Context, selector string, timeout time.Duration) ([]crawler.Element, error) {
	var found []struct {
		Text string `json:"text"`
		Href string `json:"href"`
	}
	err := s.run(ctx, s.current(), timeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf(elementsScript, selector), &found),
	)
	if err != nil {
		return nil, fmt.Errorf("locate %q: %w", selector, err)
	}

	elements := make([]crawler.Element, 0, len(found))
	for _, f := range found {
		elements = append(elements, crawler.Element{Text: f.Text, Href: f.Href})
	}
	return elements, nil
}

// ClickWhenReady waits for the selector to be visible and clicks it.
func (s *Session) ClickWhenReady(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, s.current(), timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// HrefWhenReady waits for the selector and returns its href attribute.
func (s *Session) HrefWhenReady(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var href string
	var ok bool
	err := s.run(ctx, s.current(), timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.AttributeValue(selector, "href", &href, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("read href of %q: %w", selector, err)
	}
	if !ok || href == "" {
		return "", fmt.Errorf("element %q has no href", selector)
	}
	return href, nil
}

// WaitPresent waits for the selector to appear in the current tab.
func (s *Session) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, s.current(), timeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

// OpenTab opens the secondary tab at url and makes it current.
func (s *Session) OpenTab(ctx context.Context, url string) error {
	if s.tab != nil {
		if err := s.CloseTab(ctx); err != nil {
			return err
		}
	}
	tab, cancel := chromedp.NewContext(s.primary)
	if err := s.run(ctx, tab, 0,
		s.networkSetup(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		cancel()
		return fmt.Errorf("open tab %s: %w", url, err)
	}
	s.tab, s.tabCancel = tab, cancel
	return nil
}

// CloseTab closes the secondary tab and switches back to the primary one.
// Closing when no tab is open is a no-op.
func (s *Session) CloseTab(context.Context) error {
	if s.tab == nil {
		return nil
	}
	if err := chromedp.Cancel(s.tab); err != nil {
		s.logger.Debug("closing detail tab reported an error", zap.Error(err))
	}
	s.tabCancel()
	s.tab, s.tabCancel = nil, nil
	return nil
}

// Close tears down the whole session.
func (s *Session) Close(ctx context.Context) error {
	_ = s.CloseTab(ctx)
	s.primaryCancel()
	s.allocCancel()
	return nil
}

// run executes actions in tabCtx, honoring both the caller's context and an
// optional wait bound. A deadline expiry surfaces as ErrWaitTimeout so site
// crawlers can tell a slow page from a broken one.
func (s *Session) run(ctx context.Context, tabCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := tabCtx
	var cancels []context.CancelFunc
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		cancels = append(cancels, cancel)
	}
	if done := ctx.Done(); done != nil {
		var stop context.CancelFunc
		runCtx, stop = mergeCancel(runCtx, ctx)
		cancels = append(cancels, stop)
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	err := chromedp.Run(runCtx, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return crawler.ErrWaitTimeout
	}
	return err
}

// mergeCancel cancels the returned context when either parent is done.
func mergeCancel(tabCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callCtx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
