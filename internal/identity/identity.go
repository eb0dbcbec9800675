// Package identity maps chat participants to email-shaped pseudo addresses
// and back. The mapping is pure and reversible: the local part of the proxy
// address is exactly the normalized digits of the phone number.
package identity

import (
	"errors"
	"strings"
)

// ErrInvalidAddress indicates a chat address with too few digits to be a
// phone number.
var ErrInvalidAddress = errors.New("invalid chat address")

// MinDigits is the minimum digit count for a usable phone number.
const MinDigits = 6

// channelPrefixes are transport-level scheme prefixes stripped during
// normalization.
var channelPrefixes = []string{"whatsapp:", "wa:", "tel:"}

// Codec derives pseudo identities for a single configured domain.
type Codec struct {
	domain string
}

// NewCodec creates a Codec for the given pseudo-identity domain.
func NewCodec(domain string) *Codec {
	return &Codec{domain: strings.ToLower(strings.TrimSpace(domain))}
}

// Domain returns the configured pseudo-identity domain.
func (c *Codec) Domain() string { return c.domain }

// Normalize reduces a chat address to its canonical form: a single leading
// "+" followed by the bare digits. Two textual variants of the same number
// normalize identically.
func Normalize(addr string) (string, error) {
	digits := digitsOf(addr)
	if len(digits) < MinDigits {
		return "", ErrInvalidAddress
	}
	return "+" + digits, nil
}

// ToProxyAddress derives the email-shaped pseudo identity for a chat
// address: <digits>@<domain>. Fails with ErrInvalidAddress when fewer than
// MinDigits digits remain after normalization.
func (c *Codec) ToProxyAddress(chatAddress string) (string, error) {
	digits := digitsOf(chatAddress)
	if len(digits) < MinDigits {
		return "", ErrInvalidAddress
	}
	return digits + "@" + c.domain, nil
}

// FromProxyAddress recovers the canonical chat address encoded in a proxy
// address. It is a recognizer, not a strict parser: it returns "" for any
// address that is not <digits>@<configured domain>, because it is also
// applied to arbitrary recipient headers that may name other mailboxes.
func (c *Codec) FromProxyAddress(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndexByte(address, '@')
	if at <= 0 {
		return ""
	}
	local, domain := address[:at], address[at+1:]
	if domain != c.domain {
		return ""
	}
	if len(local) < MinDigits || !allDigits(local) {
		return ""
	}
	return "+" + local
}

func digitsOf(addr string) string {
	addr = strings.ToLower(strings.TrimSpace(addr))
	for _, prefix := range channelPrefixes {
		if strings.HasPrefix(addr, prefix) {
			addr = addr[len(prefix):]
			break
		}
	}
	var b strings.Builder
	b.Grow(len(addr))
	for _, r := range addr {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
