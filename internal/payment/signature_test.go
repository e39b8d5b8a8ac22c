package payment

import (
	"fmt"
	"testing"
	"time"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{
			name:   "valid signature",
			header: SignatureHeader(payload, now.Unix(), secret),
		},
		{
			name:   "just inside the tolerance window",
			header: SignatureHeader(payload, now.Add(-4*time.Minute).Unix(), secret),
		},
		{
			name:    "outside the tolerance window",
			header:  SignatureHeader(payload, now.Add(-6*time.Minute).Unix(), secret),
			wantErr: true,
		},
		{
			name:    "wrong secret",
			header:  SignatureHeader(payload, now.Unix(), "whsec_other"),
			wantErr: true,
		},
		{
			name:    "signature over different payload",
			header:  SignatureHeader([]byte(`{"id":"evt_2"}`), now.Unix(), secret),
			wantErr: true,
		},
		{
			name:    "missing header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "malformed header",
			header:  "not-a-signature",
			wantErr: true,
		},
		{
			name:    "non-numeric timestamp",
			header:  "t=abc,v1=deadbeef",
			wantErr: true,
		},
		{
			name:    "missing v1 part",
			header:  "t=1750000000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(payload, tt.header, secret, tolerance, now)
			if (err != nil) != tt.wantErr {
				t.Errorf("VerifySignature() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestVerifySignature_TimestampIsSigned(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	// Re-stamping an old signature with a fresh timestamp must fail: the
	// timestamp participates in the signed material.
	old := now.Add(-time.Hour).Unix()
	replayed := fmt.Sprintf("t=%d,v1=%s", now.Unix(), ComputeSignature(payload, old, secret))

	if err := VerifySignature(payload, replayed, secret, 5*time.Minute, now); err == nil {
		t.Error("VerifySignature() accepted a re-stamped signature")
	}
}

func TestUnitConversions(t *testing.T) {
	tests := []struct {
		major float64
		minor int64
	}{
		{0, 0},
		{1, 100},
		{110.50, 11050},
		{0.01, 1},
		{19.99, 1999},
	}

	for _, tt := range tests {
		if got := MinorUnits(tt.major); got != tt.minor {
			t.Errorf("MinorUnits(%v) = %d, want %d", tt.major, got, tt.minor)
		}
		if got := MajorUnits(tt.minor); got != tt.major {
			t.Errorf("MajorUnits(%d) = %v, want %v", tt.minor, got, tt.major)
		}
	}
}
