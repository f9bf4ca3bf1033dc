// Package device issues and reads the long-lived opaque identifier that ties
// a pre-install store call to a post-install retrieve call from the same
// device.
package device

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"
)

// CookieName is the device identity cookie set on first contact.
const CookieName = "brp-device-identifier"

const (
	// identifierLength is the hex length of a generated identifier. Must be even.
	identifierLength = 10

	cookieMaxAge = 24 * time.Hour
)

// Resolve returns the device identifier carried by the request cookie, or
// generates a new one, sets it on the response, and returns it. A missing
// cookie is the normal first-visit case, never an error.
func Resolve(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := newIdentifier()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
	})
	return id
}

func newIdentifier() string {
	buf := make([]byte, identifierLength/2)
	// rand.Read never fails on supported platforms; from Go 1.21 it panics
	// instead of returning an error when the kernel source is unavailable.
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
