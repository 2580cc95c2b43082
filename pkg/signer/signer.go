package signer

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "fansync/pkg/errors"
)

const digestLen = sha1.Size * 2

// Signer computes the per-request authorization headers. A zero Signer, or
// one built with nil rules, fails every call with errs.ErrSigningUnavailable.
type Signer struct {
	rules *HeaderRules
}

// New returns a signer for the given rules bundle
func New(rules *HeaderRules) *Signer {
	return &Signer{rules: rules}
}

// Available reports whether the signer can produce headers
func (s *Signer) Available() bool {
	return s != nil && s.rules != nil
}

// Sign returns the app-token, sign, time and x-bc headers for a request to
// pathAndQuery (for example "/api2/v2/users/me?limit=10") issued at t.
func (s *Signer) Sign(pathAndQuery, xbc string, t time.Time) (http.Header, error) {
	if !s.Available() {
		return nil, errs.ErrSigningUnavailable
	}

	ts := strconv.FormatInt(t.Unix(), 10)
	sum := sha1.Sum([]byte(strings.Join([]string{s.rules.StaticParam, ts, pathAndQuery, "0"}, "\n")))
	digest := hex.EncodeToString(sum[:])

	checksum := s.rules.ChecksumConstant
	for _, idx := range s.rules.ChecksumIndexes {
		if idx < 0 || idx >= len(digest) {
			return nil, errs.NewDecode("header rules", fmt.Errorf("checksum index %d outside digest", idx))
		}
		checksum += int(digest[idx])
	}
	if checksum < 0 {
		checksum = -checksum
	}

	sign, err := formatTemplate(s.rules.Format, digest, checksum)
	if err != nil {
		return nil, errs.NewDecode("header rules format", err)
	}

	h := make(http.Header, 4)
	h.Set("app-token", s.rules.AppToken)
	h.Set("sign", sign)
	h.Set("time", ts)
	h.Set("x-bc", xbc)
	return h, nil
}
