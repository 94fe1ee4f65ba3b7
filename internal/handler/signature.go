// internal/handler/signature.go
package handler

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/unclebandit/revive-backend/internal/errors"
)

// TwilioSignature computes base64(HMAC-SHA1(token, url + sorted key/value pairs)).
func TwilioSignature(fullURL string, params url.Values, token string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyTwilioSignature(fullURL string, params url.Values, token, signature string) error {
	expected := TwilioSignature(fullURL, params, token)
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		return appErrors.ErrInvalidSignature
	}
	return nil
}

// StripeSignature returns the v1 scheme digest for payload signed at ts.
func StripeSignature(payload []byte, ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyStripeSignature checks a "t=...,v1=..." header. Any v1 entry may match.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	var (
		ts         int64
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
				return fmt.Errorf("%w: bad timestamp", appErrors.ErrInvalidSignature)
			}
			ts = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: malformed header", appErrors.ErrInvalidSignature)
	}

	if tolerance > 0 {
		skew := now.Sub(time.Unix(ts, 0))
		if skew > tolerance || skew < -tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", appErrors.ErrInvalidSignature)
		}
	}

	expected := StripeSignature(payload, ts, secret)
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return appErrors.ErrInvalidSignature
}

// payloadDigest is a short content hash used as a last-resort event discriminator.
func payloadDigest(raw []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(raw))
	return hex.EncodeToString(sum[:16])
}
