package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/orchardshop/storefront/pkg/errors"
)

// Signature header format: "t=<unix>,v1=<hex hmac-sha256 of '<t>.<payload>'>".
// The timestamp is part of the signed material, so an attacker cannot replay
// an old payload under a fresh timestamp.

// VerifySignature checks the webhook signature header against the shared
// secret and rejects events outside the tolerance window.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return &errors.ErrPaymentVerification{Message: err.Error()}
	}

	eventTime := time.Unix(timestamp, 0)
	if now.Sub(eventTime) > tolerance {
		return &errors.ErrPaymentVerification{Message: "event timestamp outside tolerance window"}
	}

	expected := ComputeSignature(payload, timestamp, secret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return &errors.ErrPaymentVerification{Message: "signature mismatch"}
	}

	return nil
}

// ComputeSignature produces the hex HMAC-SHA256 over "<timestamp>.<payload>"
func ComputeSignature(payload []byte, timestamp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader formats a signature header, used by tests and tooling
func SignatureHeader(payload []byte, timestamp int64, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(payload, timestamp, secret))
}

func parseSignatureHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", fmt.Errorf("missing signature header")
	}

	var timestamp int64
	var signature string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return 0, "", fmt.Errorf("malformed signature header")
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("malformed signature timestamp")
			}
			timestamp = ts
		case "v1":
			signature = kv[1]
		}
	}

	if timestamp == 0 || signature == "" {
		return 0, "", fmt.Errorf("incomplete signature header")
	}

	return timestamp, signature, nil
}
