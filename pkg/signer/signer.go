// Package signer adds premium credentials to resolver-site URLs.
//
// The resolver site expects pass=<user>:::<md5(md5(password))> with both
// digests hex encoded. Anything else is rejected upstream, so the scheme is
// fixed here rather than configurable.
package signer

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
)

// Credentials are the optional premium account settings.
type Credentials struct {
	User     string
	Pass     string
	Location string
	UID      string
}

// Configured reports whether both user and password are present.
func (c Credentials) Configured() bool {
	return c.User != "" && c.Pass != ""
}

// HashPassword applies the vendor's double MD5.
func HashPassword(pass string) string {
	first := md5.Sum([]byte(pass))
	second := md5.Sum([]byte(hex.EncodeToString(first[:])))
	return hex.EncodeToString(second[:])
}

// Sign returns rawURL with the pass (and location) query parameters set.
// Without credentials, or for an unparseable URL, rawURL is returned as is.
func Sign(rawURL string, creds Credentials) string {
	if !creds.Configured() {
		return rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	q := u.Query()
	q.Set("pass", creds.User+":::"+HashPassword(creds.Pass))
	if creds.Location != "" {
		q.Set("location", creds.Location)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
