package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>" pairs. The signed
// content is "<t>.<raw body>".
const SignatureHeader = "Stripe-Signature"

var (
	ErrSignature           = errors.New("webhook signature verification failed")
	errMissingSignature    = fmt.Errorf("%w: missing signature header", ErrSignature)
	errInvalidHeader       = fmt.Errorf("%w: malformed signature header", ErrSignature)
	errTimestampExpired    = fmt.Errorf("%w: timestamp outside tolerance", ErrSignature)
	errNoMatchingSignature = fmt.Errorf("%w: no matching signature", ErrSignature)
)

// ComputeSignature returns the hex HMAC-SHA256 of payload at timestamp ts.
func ComputeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds a header value for payload signed at ts.
func SignatureHeaderValue(payload []byte, secret string, ts int64) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeSignature(payload, secret, ts))
}

// VerifySignature checks header against payload. A zero tolerance disables
// the timestamp check.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return errMissingSignature
	}

	var (
		ts         int64
		haveTs     bool
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}

		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return errInvalidHeader
			}
			ts, haveTs = parsed, true
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if !haveTs || len(signatures) == 0 {
		return errInvalidHeader
	}

	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return errTimestampExpired
		}
	}

	expected := []byte(ComputeSignature(payload, secret, ts))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), expected) {
			return nil
		}
	}

	return errNoMatchingSignature
}
