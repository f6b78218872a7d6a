package command

import (
	"testing"

	"github.com/vietddude/blessbot/internal/core/domain"
)

const (
	addr1 = "0x1111111111111111111111111111111111111111"
	addr2 = "0x2222222222222222222222222222222222222222"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Command
	}{
		{
			name: "explicit bind",
			text: "@bot bind me " + addr1,
			want: domain.Command{Kind: domain.CommandBind, Address: addr1},
		},
		{
			name: "bind is case insensitive",
			text: "BIND ME 0xABCDEFABCDEFABCDEFABCDEFABCDEFABCDEFABCD",
			want: domain.Command{Kind: domain.CommandBind, Address: "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"},
		},
		{
			name: "bind phrase wins over earlier address",
			text: addr2 + " please bind me " + addr1,
			want: domain.Command{Kind: domain.CommandBind, Address: addr1},
		},
		{
			name: "bind phrase with address elsewhere",
			text: "bind me please, my wallet is " + addr2,
			want: domain.Command{Kind: domain.CommandBind, Address: addr2},
		},
		{
			name: "bare address",
			text: "here you go " + addr1,
			want: domain.Command{Kind: domain.CommandBareAddress, Address: addr1},
		},
		{
			name: "address wins over bless",
			text: "bless @alice " + addr1,
			want: domain.Command{Kind: domain.CommandBareAddress, Address: addr1},
		},
		{
			name: "short hex is not an address",
			text: "bless @alice 0x1234",
			want: domain.Command{Kind: domain.CommandBless, Target: "alice"},
		},
		{
			name: "41 hex digits is not an address",
			text: "0x" + "1111111111111111111111111111111111111111" + "1",
			want: domain.Command{Kind: domain.CommandUnrecognized},
		},
		{
			name: "bless with sigil",
			text: "@bot bless @Alice_01 today",
			want: domain.Command{Kind: domain.CommandBless, Target: "alice_01"},
		},
		{
			name: "bless without sigil",
			text: "Bless bob",
			want: domain.Command{Kind: domain.CommandBless, Target: "bob"},
		},
		{
			name: "bless target is capped at 15 chars",
			text: "bless abcdefghijklmnopqrstu",
			want: domain.Command{Kind: domain.CommandBless, Target: "abcdefghijklmno"},
		},
		{
			name: "blessing is not bless",
			text: "what a blessing @carol",
			want: domain.Command{Kind: domain.CommandUnrecognized},
		},
		{
			name: "bind phrase without address",
			text: "bind me now",
			want: domain.Command{Kind: domain.CommandUnrecognized},
		},
		{
			name: "empty",
			text: "",
			want: domain.Command{Kind: domain.CommandUnrecognized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestActionable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"bind me " + addr1, true},
		{"Bless @alice", true},
		{addr1, true},
		{"gm everyone", false},
		{"blessings to all", false},
	}
	for _, tt := range tests {
		if got := Actionable(tt.text); got != tt.want {
			t.Errorf("Actionable(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
