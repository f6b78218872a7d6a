package fulfillment

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ImageKind selects the picture attached to a reply.
type ImageKind string

const (
	ImageBindSuccess        ImageKind = "bind_success"
	ImageNeedsBind          ImageKind = "needs_bind"
	ImageBlessSent          ImageKind = "bless_sent"
	ImageSenderRateLimit    ImageKind = "sender_rate_limit"
	ImageRecipientRateLimit ImageKind = "recipient_rate_limit"
	ImageBlessFailed        ImageKind = "bless_failed"
	ImageBindFailed         ImageKind = "bind_failed"
)

// ImageConfig maps reply outcomes to image files under Dir.
type ImageConfig struct {
	Dir                string `yaml:"dir"`
	BindSuccess        string `yaml:"bind_success"`
	NeedsBind          string `yaml:"needs_bind"`
	BlessSent          string `yaml:"bless_sent"`
	SenderRateLimit    string `yaml:"sender_rate_limit"`
	RecipientRateLimit string `yaml:"recipient_rate_limit"`
	BlessFailed        string `yaml:"bless_failed"`
	BindFailed         string `yaml:"bind_failed"`
}

// DefaultImageConfig returns the stock image file names.
func DefaultImageConfig() ImageConfig {
	return ImageConfig{
		Dir:                "images",
		BindSuccess:        "bind_success.png",
		NeedsBind:          "needs_bind.png",
		BlessSent:          "bless_sent.png",
		SenderRateLimit:    "rate_limit_sender.png",
		RecipientRateLimit: "rate_limit_recipient.png",
		BlessFailed:        "bless_failed.png",
		BindFailed:         "bind_failed.png",
	}
}

func (c ImageConfig) file(kind ImageKind) string {
	switch kind {
	case ImageBindSuccess:
		return c.BindSuccess
	case ImageNeedsBind:
		return c.NeedsBind
	case ImageBlessSent:
		return c.BlessSent
	case ImageSenderRateLimit:
		return c.SenderRateLimit
	case ImageRecipientRateLimit:
		return c.RecipientRateLimit
	case ImageBlessFailed:
		return c.BlessFailed
	case ImageBindFailed:
		return c.BindFailed
	}
	return ""
}

func (c *ImageConfig) set(kind ImageKind, name string) {
	switch kind {
	case ImageBindSuccess:
		c.BindSuccess = name
	case ImageNeedsBind:
		c.NeedsBind = name
	case ImageBlessSent:
		c.BlessSent = name
	case ImageSenderRateLimit:
		c.SenderRateLimit = name
	case ImageRecipientRateLimit:
		c.RecipientRateLimit = name
	case ImageBlessFailed:
		c.BlessFailed = name
	case ImageBindFailed:
		c.BindFailed = name
	}
}

// Resolve returns the existing image paths for kind. Missing files are
// skipped with a warning.
func (c ImageConfig) Resolve(kind ImageKind) []string {
	name := c.file(kind)
	if name == "" {
		return nil
	}
	path := filepath.Join(c.Dir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		slog.Warn("Image not found, skipping", "path", path)
		return nil
	}
	return []string{path}
}

// Reply texts.

func msgAlreadyBound(addr string) string {
	return fmt.Sprintf("you’re already bound to %s. No changes made.", addr)
}

func msgBindingImmutable(addr string) string {
	return fmt.Sprintf("you’re already bound to %s. Binding cannot be changed.", addr)
}

const (
	msgBindingExists    = "binding exists already."
	msgBindInstructions = `to bind, reply: "bind me 0xYOURADDRESS"`
	msgBindRewardFailed = "bind saved but reward failed to send."
	msgSelfBless        = "you can’t bless yourself."
	msgSenderRateLimit  = "you can only send a blessing once every 24h."
	msgBlessFailed      = "failed to send blessing."
)

func msgBindAndFulfill(addr, reward, blessing, symbol, link string) string {
	return fmt.Sprintf("your wallet %s is bound. You’ve received %s %s (bind) + %s %s blessing. Tx: %s",
		addr, reward, symbol, blessing, symbol, link)
}

func msgBindReward(addr, reward, symbol, link string) string {
	return fmt.Sprintf("your wallet %s is bound and you’ve received %s %s! Tx: %s", addr, reward, symbol, link)
}

func msgRecipientRateLimit(target, symbol string) string {
	return fmt.Sprintf("@%s already received %s in last 24h.", target, symbol)
}

func msgBlessSent(target, amount, symbol, link string) string {
	return fmt.Sprintf("→ @%s: %s %s sent! Tx: %s", target, amount, symbol, link)
}

func msgNeedsBind(target string) string {
	return fmt.Sprintf("@%s needs to join the faith first. Please drop your ETH wallet below", target)
}
