package x

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/vietddude/blessbot/internal/core/command"
	"github.com/vietddude/blessbot/internal/core/domain"
)

// Tried in order until one matches.
var articleSelectors = []string{
	"article",
	"div[data-testid='cellInnerDiv'] article",
	"div[data-testid='tweet']",
}

// article is a scraped mention before filtering.
type article struct {
	Text string
	Href string
}

// Fetch returns actionable mentions newer than sinceID, oldest first. When the
// saved session is no longer valid it logs in again and returns nothing.
func (c *Client) Fetch(ctx context.Context, sinceID int64) ([]domain.Mention, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		raw        []article
		needsLogin bool
	)
	err := c.withPage(ctx, true, func(_ *rod.Browser, page *rod.Page) error {
		if err := c.navigate(page, "/notifications/mentions"); err != nil {
			return err
		}

		info, err := page.Info()
		if err == nil && strings.HasPrefix(info.URL, c.cfg.BaseURL+"/i/flow/login") {
			needsLogin = true
			return nil
		}
		if has, _, _ := page.Has("input[name='text']"); has {
			needsLogin = true
			return nil
		}

		if err := page.WaitIdle(30 * time.Second); err != nil {
			c.log.Warn("Idle wait timed out, continuing", "error", err)
		}

		raw = c.scrape(page)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mentions: %w", err)
	}

	if needsLogin {
		c.log.Warn("Session invalid or login required, refreshing state")
		if err := c.login(ctx); err != nil {
			return nil, fmt.Errorf("failed to log in: %w", err)
		}
		return nil, nil
	}

	if len(raw) == 0 {
		c.log.Warn("No articles found on notifications page")
	}
	return filterMentions(raw, sinceID, c.own), nil
}

func (c *Client) scrape(page *rod.Page) []article {
	var els rod.Elements
	for _, sel := range articleSelectors {
		found, err := page.Timeout(25 * time.Second).Element(sel)
		if err != nil || found == nil {
			continue
		}
		els, err = page.Elements(sel)
		if err == nil && len(els) > 0 {
			break
		}
	}

	out := make([]article, 0, len(els))
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		a := article{Text: strings.TrimSpace(text)}
		links, err := el.Elements("a[href*='/status/']")
		if err == nil && len(links) > 0 {
			if href, err := links.First().Attribute("href"); err == nil && href != nil {
				a.Href = *href
			}
		}
		out = append(out, a)
	}
	return out
}

// filterMentions keeps actionable articles with a status link newer than
// sinceID that were not written by the bot, ordered by id.
func filterMentions(raw []article, sinceID int64, own string) []domain.Mention {
	seen := make(map[int64]bool)
	var out []domain.Mention
	for _, a := range raw {
		if !command.Actionable(a.Text) {
			continue
		}
		handle, id, ok := parseStatusHref(a.Href)
		if !ok || id <= sinceID || seen[id] {
			continue
		}
		if own != "" && normalizeHandle(handle) == own {
			continue
		}
		seen[id] = true
		out = append(out, domain.Mention{ID: id, Handle: handle, Text: a.Text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// parseStatusHref extracts the author and post id from "/handle/status/123".
func parseStatusHref(href string) (string, int64, bool) {
	if i := strings.Index(href, "://"); i >= 0 {
		rest := href[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			href = rest[j:]
		}
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" || parts[0] == "" {
		return "", 0, false
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return parts[0], id, true
}

func normalizeHandle(h string) string {
	return domain.NormalizeHandle(h)
}
