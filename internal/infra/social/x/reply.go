package x

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/vietddude/blessbot/internal/core/domain"
)

const (
	replyBox     = "div[role='textbox']"
	fileInput    = "input[data-testid='fileInput']"
	replyButton  = "div[data-testid='tweetButtonInline']:not([aria-disabled='true'])"
	buttonChecks = 12
)

// Reply posts r.Message under the mention, with images attached when present.
func (c *Client) Reply(ctx context.Context, r domain.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.withPage(ctx, !c.cfg.ShowBrowser, func(_ *rod.Browser, page *rod.Page) error {
		if err := c.navigate(page, statusPath(r.Handle, r.EventID)); err != nil {
			return err
		}

		box, err := page.Timeout(15 * time.Second).Element(replyBox)
		if err != nil {
			return fmt.Errorf("reply box: %w", err)
		}
		if err := box.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("focus reply box: %w", err)
		}

		if len(r.Images) > 0 {
			files, err := page.Element(fileInput)
			if err != nil {
				return fmt.Errorf("file input: %w", err)
			}
			if err := files.SetFiles(r.Images); err != nil {
				return fmt.Errorf("attach images: %w", err)
			}
			sleep(ctx, 1500*time.Millisecond)
		}

		if err := box.Input(replyText(r.Handle, r.Message)); err != nil {
			return fmt.Errorf("type reply: %w", err)
		}
		sleep(ctx, 800*time.Millisecond)

		if !clickReply(ctx, page) {
			if err := page.KeyActions().Press(input.ControlLeft).Type(input.Enter).Do(); err != nil {
				return fmt.Errorf("submit reply: %w", err)
			}
		}
		sleep(ctx, time.Second)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reply to %d: %w", r.EventID, err)
	}

	c.log.Info("Replied", "handle", r.Handle, "event_id", r.EventID, "images", len(r.Images))
	return nil
}

func clickReply(ctx context.Context, page *rod.Page) bool {
	for i := 0; i < buttonChecks; i++ {
		has, btn, err := page.Has(replyButton)
		if err == nil && has {
			if visible, _ := btn.Visible(); visible {
				if err := btn.Click(proto.InputMouseButtonLeft, 1); err == nil {
					return true
				}
			}
		}
		sleep(ctx, 250*time.Millisecond)
	}
	return false
}

func statusPath(handle string, id int64) string {
	return fmt.Sprintf("/%s/status/%d", handle, id)
}

func replyText(handle, msg string) string {
	return fmt.Sprintf("@%s %s", handle, msg)
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
