// Package auth implements the IPSC datagram authentication scheme: a
// truncated HMAC-SHA1 trailer appended to every outbound frame and
// verified on every inbound one. Disabling auth swaps in a no-op
// implementation of the same interface rather than branching on a flag
// throughout the dispatcher.
package auth

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // IPSC's wire format mandates SHA1, not a choice made here
)

// HashLength is the truncated HMAC-SHA1 trailer length the IPSC protocol
// appends to authenticated frames.
const HashLength = 10

// Authenticator wraps outbound datagrams with authentication material and
// verifies/strips it from inbound ones. The two implementations
// (HMACAuthenticator, NoopAuthenticator) mirror the reference
// implementation's authenticated/unauthenticated subclass pair without an
// inheritance hierarchy.
type Authenticator interface {
	// Wrap appends authentication material to data for transmission.
	Wrap(data []byte) []byte
	// Verify checks data's trailing authentication material and, on
	// success, returns the original payload with that material stripped.
	Verify(data []byte) (payload []byte, ok bool)
}

// New selects an Authenticator based on whether auth is enabled for a
// system.
func New(enabled bool, key []byte) Authenticator {
	if !enabled {
		return NoopAuthenticator{}
	}
	return HMACAuthenticator{Key: key}
}

// HMACAuthenticator appends/verifies a 10-byte truncated HMAC-SHA1 trailer
// computed over the frame with a pre-shared key.
type HMACAuthenticator struct {
	Key []byte
}

// Wrap appends data || HMAC_SHA1(key, data)[:10].
func (h HMACAuthenticator) Wrap(data []byte) []byte {
	sum := sign(h.Key, data)
	out := make([]byte, 0, len(data)+HashLength)
	out = append(out, data...)
	out = append(out, sum...)
	return out
}

// Verify splits the trailing HashLength bytes off data, recomputes the
// HMAC over the remaining prefix, and compares in constant time.
func (h HMACAuthenticator) Verify(data []byte) ([]byte, bool) {
	if len(data) < HashLength {
		return nil, false
	}
	split := len(data) - HashLength
	payload, trailer := data[:split], data[split:]
	expected := sign(h.Key, payload)
	if !hmac.Equal(expected, trailer) {
		return nil, false
	}
	return payload, true
}

func sign(key, data []byte) []byte {
	mac := hmac.New(sha1.New, key)
	mac.Write(data)
	return mac.Sum(nil)[:HashLength]
}

// NoopAuthenticator is the unauthenticated variant: Wrap and Verify are
// both identity operations, used when a system's AUTH_ENABLED is false.
type NoopAuthenticator struct{}

func (NoopAuthenticator) Wrap(data []byte) []byte { return data }

func (NoopAuthenticator) Verify(data []byte) ([]byte, bool) { return data, true }
