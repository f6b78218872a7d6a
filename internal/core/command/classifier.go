package command

import (
	"regexp"
	"strings"

	"github.com/vietddude/blessbot/internal/core/domain"
)

const bindPhrase = "bind me"

var (
	addressRe   = regexp.MustCompile(`\b0x[a-f0-9]{40}\b`)
	bindRe      = regexp.MustCompile(`bind me\s+(0x[a-f0-9]{40})\b`)
	blessRe     = regexp.MustCompile(`\bbless\b\s+@?([a-z0-9_]{1,15})`)
	blessWordRe = regexp.MustCompile(`\bbless\b`)
)

// Classify parses mention text into a command. Matching is case-insensitive
// and addresses are returned lowercased.
//
// Rules, first match wins:
//  1. "bind me" and an address: CommandBind, preferring the address right after the phrase.
//  2. an address: CommandBareAddress.
//  3. "bless" followed by a handle: CommandBless.
//  4. otherwise CommandUnrecognized.
func Classify(text string) domain.Command {
	low := strings.ToLower(text)

	addr := addressRe.FindString(low)
	if addr != "" && strings.Contains(low, bindPhrase) {
		if m := bindRe.FindStringSubmatch(low); m != nil {
			addr = m[1]
		}
		return domain.Command{Kind: domain.CommandBind, Address: addr}
	}
	if addr != "" {
		return domain.Command{Kind: domain.CommandBareAddress, Address: addr}
	}
	if m := blessRe.FindStringSubmatch(low); m != nil {
		return domain.Command{Kind: domain.CommandBless, Target: m[1]}
	}
	return domain.Command{Kind: domain.CommandUnrecognized}
}

// Actionable reports whether text is worth handing to the engine. Sources use
// it to drop chatter before it reaches the ledger.
func Actionable(text string) bool {
	low := strings.ToLower(text)
	return strings.Contains(low, bindPhrase) || addressRe.MatchString(low) || blessWordRe.MatchString(low)
}
