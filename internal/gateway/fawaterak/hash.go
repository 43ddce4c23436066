package fawaterak

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashKey signs the payment-plugin handshake. The gateway calls the
// merchant back with a domain and expects an HMAC over a fixed template
// keyed by the vendor key.
func (c *Client) HashKey(domain string) (string, error) {
	if c.apiKey == "" || c.providerKey == "" {
		return "", ErrMissingCredentials
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", ErrInvalidResponse
	}

	signed := fmt.Sprintf("Domain=%s&ProviderKey=%s", domain, c.providerKey)
	mac := hmac.New(sha256.New, []byte(c.apiKey))
	_, _ = mac.Write([]byte(signed))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
