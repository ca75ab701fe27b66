// Package webhook signs and verifies outbound change-notification
// payloads, and delivers them with a bounded retry schedule.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingComponent is returned when a signature header is missing
// its t or v1 component.
var ErrMissingComponent = errors.New("webhook: signature header missing t or v1 component")

// ErrReplayWindowExceeded is returned when a signature's timestamp is
// outside the tolerance window.
var ErrReplayWindowExceeded = errors.New("webhook: signature timestamp outside tolerance window")

// ErrSignatureMismatch is returned when neither the current nor (if
// present) previous secret produces a matching signature.
var ErrSignatureMismatch = errors.New("webhook: signature does not match")

// Signer computes and verifies the t=...,v1=... header format used to
// authenticate webhook deliveries, grounded on webhook_service.go's
// computeSignature but generalized to verify as well as produce.
type Signer struct {
	tolerance time.Duration
}

// NewSigner builds a Signer with the given replay-window tolerance.
func NewSigner(tolerance time.Duration) *Signer {
	return &Signer{tolerance: tolerance}
}

// Sign computes the signature header for body using secret at time t.
// Header format: t={unix_seconds},v1={hex(HMAC_SHA256(secret, "{t}.{body}"))}
func (s *Signer) Sign(body []byte, secret string, t time.Time) string {
	ts := t.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeHMAC(body, secret, ts))
}

// Verify checks header against body signed with secret, rejecting
// timestamps outside the replay window.
func (s *Signer) Verify(body []byte, header, secret string, now time.Time) error {
	ts, v1, err := parseHeader(header)
	if err != nil {
		return err
	}
	if abs(now.Unix()-ts) > int64(s.tolerance/time.Second) {
		return ErrReplayWindowExceeded
	}
	expected := computeHMAC(body, secret, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(v1)) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifyWithRotation tries current first; if that fails with a
// signature mismatch and previous is non-empty, it retries against
// previous. Per spec, previous is usable regardless of its rotation
// expiry at verify time -- the Scheduler is responsible for clearing
// expired previous secrets.
func (s *Signer) VerifyWithRotation(body []byte, header, current string, previous *string, now time.Time) error {
	err := s.Verify(body, header, current, now)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrSignatureMismatch) || previous == nil || *previous == "" {
		return err
	}
	return s.Verify(body, header, *previous, now)
}

func computeHMAC(body []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseHeader(header string) (int64, string, error) {
	var ts int64
	var v1 string
	var haveTS, haveV1 bool

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, "", ErrMissingComponent
			}
			ts = parsed
			haveTS = true
		case "v1":
			v1 = kv[1]
			haveV1 = true
		}
	}
	if !haveTS || !haveV1 {
		return 0, "", ErrMissingComponent
	}
	return ts, v1, nil
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
