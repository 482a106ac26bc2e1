// Package addrgen produces synthetic deposit addresses and on-chain hashes.
// Nothing here is cryptographically meaningful; the output only has to look
// right for the asset's addressing style and never collide in practice.
package addrgen

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// Style is an asset's chain addressing model.
type Style string

const (
	AccountBased Style = "ACCOUNT_BASED"
	AddressBased Style = "ADDRESS_BASED"
	MemoBased    Style = "MEMO_BASED"
)

func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToUpper(strings.TrimSpace(s))) {
	case AccountBased:
		return AccountBased, nil
	case AddressBased:
		return AddressBased, nil
	case MemoBased:
		return MemoBased, nil
	}
	return "", fmt.Errorf("unknown addressing style %q", s)
}

// MultiAddress reports whether wallets of this style may accumulate more
// than one deposit address under a shared balance.
func (s Style) MultiAddress() bool {
	return s == AddressBased
}

// NewAddress generates an address for the given style: 0x-prefixed hex for
// account-based chains, bare hex for address- and memo-based ones.
func NewAddress(style Style) (string, error) {
	switch style {
	case AccountBased:
		body, err := randomHex(20)
		if err != nil {
			return "", err
		}
		return "0x" + body, nil
	case AddressBased, MemoBased:
		return randomHex(20)
	}
	return "", fmt.Errorf("unknown addressing style %q", style)
}

// NewMemo generates a numeric destination tag for memo-based assets.
func NewMemo() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(buf[:]) % 1_000_000_000
	return fmt.Sprintf("%09d", n), nil
}

// NewTxHash generates a synthetic on-chain transaction hash.
func NewTxHash() (string, error) {
	body, err := randomHex(32)
	if err != nil {
		return "", err
	}
	return "0x" + body, nil
}

// Matches reports whether an address string is plausible for a style. Used
// by the address validation endpoint; intentionally shallow.
func Matches(style Style, address string) bool {
	addr := strings.TrimSpace(address)
	switch style {
	case AccountBased:
		if !strings.HasPrefix(addr, "0x") {
			return false
		}
		return isHex(addr[2:]) && len(addr) == 42
	case AddressBased, MemoBased:
		return isHex(addr) && len(addr) >= 26 && len(addr) <= 64
	}
	return false
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	_, err := hex.DecodeString(strings.ToLower(s))
	return err == nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
