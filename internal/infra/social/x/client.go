// Package x drives an x.com session with a headless browser: it reads the
// bot's mentions and posts replies.
package x

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const (
	DefaultBaseURL           = "https://x.com"
	DefaultStateFile         = "x_state.json"
	DefaultNavigationTimeout = 60 * time.Second
)

// ErrNoCredentials is returned when a login is needed but no credentials are set.
var ErrNoCredentials = errors.New("x credentials not configured")

// Config holds browser settings.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	StateFile         string        `yaml:"state_file"`
	BrowserBin        string        `yaml:"browser_bin"`
	ShowBrowser       bool          `yaml:"show_browser"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.StateFile == "" {
		c.StateFile = DefaultStateFile
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
}

// Credentials log the bot account in.
type Credentials struct {
	Username string
	Password string
}

// Client is the bot's x.com session. Each call runs in its own browser and
// shares the cookie state file.
type Client struct {
	cfg   Config
	creds Credentials
	own   string
	log   *slog.Logger
	mu    sync.Mutex
}

// New creates a client.
func New(cfg Config, creds Credentials) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:   cfg,
		creds: creds,
		own:   normalizeHandle(creds.Username),
		log:   slog.Default().With("component", "x"),
	}
}

// withPage launches a browser, restores the saved session and runs fn on a
// fresh page.
func (c *Client) withPage(ctx context.Context, headless bool, fn func(*rod.Browser, *rod.Page) error) error {
	l := launcher.New().Headless(headless)
	if c.cfg.BrowserBin != "" {
		l = l.Bin(c.cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}
	defer func() {
		_ = browser.Close()
	}()

	if cookies, err := c.loadState(); err != nil {
		c.log.Warn("Failed to load session state", "file", c.cfg.StateFile, "error", err)
	} else if len(cookies) > 0 {
		if err := browser.SetCookies(cookies); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	return fn(browser, page)
}

func (c *Client) navigate(page *rod.Page, path string) error {
	url := c.cfg.BaseURL + path
	if err := page.Timeout(c.cfg.NavigationTimeout).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.Timeout(c.cfg.NavigationTimeout).WaitLoad(); err != nil {
		c.log.Debug("Page load wait timed out", "url", url, "error", err)
	}
	return nil
}

// ----------------------------------------------------------------------------
// Session state
// ----------------------------------------------------------------------------

func (c *Client) loadState() ([]*proto.NetworkCookieParam, error) {
	data, err := os.ReadFile(c.cfg.StateFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cookies []*proto.NetworkCookieParam
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return cookies, nil
}

func (c *Client) saveState(browser *rod.Browser) error {
	cookies, err := browser.GetCookies()
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Expires:  ck.Expires,
			HTTPOnly: ck.HTTPOnly,
			Secure:   ck.Secure,
			SameSite: ck.SameSite,
			Priority: ck.Priority,
		})
	}
	data, err := json.MarshalIndent(params, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.cfg.StateFile, data, 0o600)
}

// ----------------------------------------------------------------------------
// Login
// ----------------------------------------------------------------------------

// Login signs the bot account in and saves the session state.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login(ctx)
}

func (c *Client) login(ctx context.Context) error {
	if c.creds.Username == "" || c.creds.Password == "" {
		return ErrNoCredentials
	}

	return c.withPage(ctx, !c.cfg.ShowBrowser, func(browser *rod.Browser, page *rod.Page) error {
		if err := c.navigate(page, "/i/flow/login"); err != nil {
			return err
		}
		p := page.Timeout(c.cfg.NavigationTimeout)

		if err := fill(p, "input[name='text']", c.creds.Username); err != nil {
			return fmt.Errorf("username: %w", err)
		}
		if err := clickText(p, "button", "Next"); err != nil {
			return err
		}
		if err := fill(p, "input[name='password']", c.creds.Password); err != nil {
			return fmt.Errorf("password: %w", err)
		}
		if err := clickText(p, "button", "Log in"); err != nil {
			return err
		}
		if err := c.waitURL(ctx, page, c.cfg.BaseURL+"/home", 30*time.Second); err != nil {
			return err
		}
		if err := c.saveState(browser); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		c.log.Info("Logged in and saved session", "file", c.cfg.StateFile)
		return nil
	})
}

func (c *Client) waitURL(ctx context.Context, page *rod.Page, want string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		info, err := page.Info()
		if err == nil && strings.HasPrefix(info.URL, want) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for %s", want)
}

func fill(page *rod.Page, selector, text string) error {
	el, err := page.Element(selector)
	if err != nil {
		return err
	}
	return el.Input(text)
}

func clickText(page *rod.Page, selector, text string) error {
	el, err := page.ElementR(selector, text)
	if err != nil {
		return fmt.Errorf("find %s %q: %w", selector, text, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}
