package licensing

import (
	"context"
	"errors"
	"testing"
)

const snapshotJSON = `{
  "renewalRequests": [
    {
      "contractId": "00renewal",
      "payload": {
        "provider": "provider::ns",
        "user": "alice::ns",
        "dso": "dso::ns",
        "licenseNum": 7,
        "licenseFeeCc": "100.0",
        "licenseExtensionDurationMicroseconds": 2592000000000,
        "reference": "payreq-001"
      }
    }
  ],
  "acceptedPayments": [
    {
      "contractId": "00pay",
      "payload": {
        "sender": "alice::ns",
        "provider": "provider::ns",
        "dso": "dso::ns",
        "reference": "payreq-001",
        "round": 42
      }
    }
  ],
  "licenses": [
    {
      "contractId": "00lic",
      "payload": {
        "dso": "dso::ns",
        "provider": "provider::ns",
        "user": "alice::ns",
        "licenseNum": 7,
        "expiresAt": "2026-09-28T12:00:00Z"
      }
    }
  ]
}`

func TestSnapshotReader(t *testing.T) {
	r, err := ParseSnapshot([]byte(snapshotJSON))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	ctx := context.Background()

	renewal, err := r.RenewalRequestByID(ctx, "00renewal")
	if err != nil {
		t.Fatalf("RenewalRequestByID: %v", err)
	}
	if renewal.Payload.Reference != "payreq-001" || renewal.Payload.LicenseNum != 7 {
		t.Fatalf("renewal payload = %+v", renewal.Payload)
	}
	if renewal.Payload.LicenseExtensionDuration.Days() != 30 {
		t.Fatalf("extension days = %d", renewal.Payload.LicenseExtensionDuration.Days())
	}

	payment, err := r.SingleActiveAcceptedPayment(ctx, "payreq-001", "alice::ns", "provider::ns")
	if err != nil {
		t.Fatalf("SingleActiveAcceptedPayment: %v", err)
	}
	if payment.ID != "00pay" || payment.Payload.Round != 42 {
		t.Fatalf("payment = %+v", payment)
	}

	license, err := r.SingleActiveLicense(ctx, "alice::ns", "provider::ns", 7, "dso::ns")
	if err != nil {
		t.Fatalf("SingleActiveLicense: %v", err)
	}
	if license.ID != "00lic" {
		t.Fatalf("license = %+v", license)
	}
}

func TestSnapshotReaderNotFound(t *testing.T) {
	r, err := ParseSnapshot([]byte(snapshotJSON))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	ctx := context.Background()

	if _, err := r.RenewalRequestByID(ctx, "00missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RenewalRequestByID: %v, want ErrNotFound", err)
	}
	if _, err := r.SingleActiveAcceptedPayment(ctx, "payreq-002", "alice::ns", "provider::ns"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SingleActiveAcceptedPayment: %v, want ErrNotFound", err)
	}
	if _, err := r.SingleActiveLicense(ctx, "bob::ns", "provider::ns", 7, "dso::ns"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SingleActiveLicense: %v, want ErrNotFound", err)
	}
}

func TestParseSnapshotInvalid(t *testing.T) {
	if _, err := ParseSnapshot([]byte("{")); err == nil {
		t.Fatal("malformed snapshot should fail")
	}
}
