package addrgen

import (
	"strings"
	"testing"
)

func TestNewAddressAccountBased(t *testing.T) {
	addr, err := NewAddress(AccountBased)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Fatalf("unexpected account-based address %q", addr)
	}
	if !Matches(AccountBased, addr) {
		t.Fatalf("generated address should validate: %q", addr)
	}
}

func TestNewAddressAddressBased(t *testing.T) {
	addr, err := NewAddress(AddressBased)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.HasPrefix(addr, "0x") {
		t.Fatalf("address-based address should be bare hex, got %q", addr)
	}
	if !Matches(AddressBased, addr) {
		t.Fatalf("generated address should validate: %q", addr)
	}
}

func TestNewAddressUnknownStyle(t *testing.T) {
	if _, err := NewAddress(Style("UTXO")); err == nil {
		t.Fatalf("expected error for unknown style")
	}
}

func TestNewMemo(t *testing.T) {
	memo, err := NewMemo()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(memo) != 9 {
		t.Fatalf("expected 9-digit memo, got %q", memo)
	}
	for _, r := range memo {
		if r < '0' || r > '9' {
			t.Fatalf("expected numeric memo, got %q", memo)
		}
	}
}

func TestNewTxHash(t *testing.T) {
	hash, err := NewTxHash()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(hash, "0x") || len(hash) != 66 {
		t.Fatalf("unexpected hash %q", hash)
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		style   Style
		address string
		want    bool
	}{
		{AccountBased, "0x52908400098527886e0f7030069857d2e4169ee7", true},
		{AccountBased, "52908400098527886e0f7030069857d2e4169ee7", false},
		{AccountBased, "0xzz08400098527886e0f7030069857d2e4169ee7", false},
		{AddressBased, "52908400098527886e0f7030069857d2e4169ee7", true},
		{AddressBased, "0x5290", false},
		{AddressBased, "abc", false},
		{MemoBased, "52908400098527886e0f7030069857d2e4169ee7", true},
		{Style("UTXO"), "52908400098527886e0f7030069857d2e4169ee7", false},
	}
	for _, tc := range cases {
		if got := Matches(tc.style, tc.address); got != tc.want {
			t.Fatalf("Matches(%s, %q) = %v, want %v", tc.style, tc.address, got, tc.want)
		}
	}
}

func TestParseStyle(t *testing.T) {
	if style, err := ParseStyle("account_based"); err != nil || style != AccountBased {
		t.Fatalf("expected AccountBased, got %v %v", style, err)
	}
	if _, err := ParseStyle("utxo"); err == nil {
		t.Fatalf("expected error for unknown style")
	}
}
