package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Signature verification failures.
var (
	ErrSignatureMissing   = errors.New("x-signature header missing or malformed")
	ErrSignatureMismatch  = errors.New("x-signature does not match")
	ErrSignatureOutOfDate = errors.New("x-signature timestamp outside tolerance")
)

// SignatureVerifier checks the x-signature header Mercado Pago attaches to
// webhook notifications.
type SignatureVerifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewSignatureVerifier creates a verifier for the given webhook secret. A
// zero tolerance disables the timestamp age check.
func NewSignatureVerifier(secret string, tolerance time.Duration) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret), tolerance: tolerance, now: time.Now}
}

// Verify validates header ("ts=<unix>,v1=<hex hmac>") against the manifest
// built from the notification's data.id and the x-request-id header.
func (v *SignatureVerifier) Verify(header, requestID, dataID string) error {
	ts, sig := parseSignatureHeader(header)
	if ts == "" || sig == "" {
		return ErrSignatureMissing
	}

	if v.tolerance > 0 {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ErrSignatureMissing
		}
		// The gateway has sent both seconds and milliseconds over time.
		sent := time.Unix(n, 0)
		if n > 1e12 {
			sent = time.UnixMilli(n)
		}
		if d := v.now().Sub(sent); d > v.tolerance || d < -v.tolerance {
			return ErrSignatureOutOfDate
		}
	}

	expected, err := hex.DecodeString(sig)
	if err != nil {
		return ErrSignatureMismatch
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrSignatureMismatch
	}
	return nil
}

// Sign returns the header value a sender would attach for the given inputs.
func (v *SignatureVerifier) Sign(requestID, dataID string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signatureManifest(dataID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// signatureManifest builds "id:<id>;request-id:<rid>;ts:<ts>;", omitting
// parts whose value is absent. Alphanumeric ids are lower-cased.
func signatureManifest(dataID, requestID, ts string) string {
	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")
	return b.String()
}

func parseSignatureHeader(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(val)
		case "v1":
			v1 = strings.TrimSpace(val)
		}
	}
	return ts, v1
}
