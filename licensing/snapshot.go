package licensing

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SnapshotReader is a ContractReader over a JSON snapshot of the active
// contract set, for operator tooling and environments without a live
// query store. Lookups scan the snapshot; the file is read once.
type SnapshotReader struct {
	renewals []Contract[LicenseRenewalRequest]
	payments []Contract[AcceptedAppPayment]
	licenses []Contract[License]
}

type snapshotFile struct {
	RenewalRequests []struct {
		ContractID string `json:"contractId"`
		Payload    struct {
			Provider              string `json:"provider"`
			User                  string `json:"user"`
			Dso                   string `json:"dso"`
			LicenseNum            int64  `json:"licenseNum"`
			LicenseFeeCc          string `json:"licenseFeeCc"`
			ExtensionMicroseconds int64  `json:"licenseExtensionDurationMicroseconds"`
			Reference             string `json:"reference"`
		} `json:"payload"`
	} `json:"renewalRequests"`
	AcceptedPayments []struct {
		ContractID string `json:"contractId"`
		Payload    struct {
			Sender    string `json:"sender"`
			Provider  string `json:"provider"`
			Dso       string `json:"dso"`
			Reference string `json:"reference"`
			Round     int64  `json:"round"`
		} `json:"payload"`
	} `json:"acceptedPayments"`
	Licenses []struct {
		ContractID string `json:"contractId"`
		Payload    struct {
			Dso        string    `json:"dso"`
			Provider   string    `json:"provider"`
			User       string    `json:"user"`
			LicenseNum int64     `json:"licenseNum"`
			ExpiresAt  time.Time `json:"expiresAt"`
		} `json:"payload"`
	} `json:"licenses"`
}

// LoadSnapshot reads a snapshot file into a SnapshotReader.
func LoadSnapshot(path string) (*SnapshotReader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("licensing: read snapshot: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot builds a SnapshotReader from raw snapshot JSON.
func ParseSnapshot(data []byte) (*SnapshotReader, error) {
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("licensing: parse snapshot: %w", err)
	}
	r := &SnapshotReader{}
	for _, e := range f.RenewalRequests {
		r.renewals = append(r.renewals, Contract[LicenseRenewalRequest]{
			ID: ContractID[LicenseRenewalRequest](e.ContractID),
			Payload: LicenseRenewalRequest{
				Provider:                 e.Payload.Provider,
				User:                     e.Payload.User,
				Dso:                      e.Payload.Dso,
				LicenseNum:               e.Payload.LicenseNum,
				LicenseFeeCc:             e.Payload.LicenseFeeCc,
				LicenseExtensionDuration: Duration{Microseconds: e.Payload.ExtensionMicroseconds},
				Reference:                e.Payload.Reference,
			},
		})
	}
	for _, e := range f.AcceptedPayments {
		r.payments = append(r.payments, Contract[AcceptedAppPayment]{
			ID: ContractID[AcceptedAppPayment](e.ContractID),
			Payload: AcceptedAppPayment{
				Sender:    e.Payload.Sender,
				Provider:  e.Payload.Provider,
				Dso:       e.Payload.Dso,
				Reference: e.Payload.Reference,
				Round:     e.Payload.Round,
			},
		})
	}
	for _, e := range f.Licenses {
		r.licenses = append(r.licenses, Contract[License]{
			ID: ContractID[License](e.ContractID),
			Payload: License{
				Dso:        e.Payload.Dso,
				Provider:   e.Payload.Provider,
				User:       e.Payload.User,
				LicenseNum: e.Payload.LicenseNum,
				ExpiresAt:  e.Payload.ExpiresAt,
			},
		})
	}
	return r, nil
}

func (r *SnapshotReader) RenewalRequestByID(ctx context.Context, id ContractID[LicenseRenewalRequest]) (Contract[LicenseRenewalRequest], error) {
	for _, c := range r.renewals {
		if c.ID == id {
			return c, nil
		}
	}
	return Contract[LicenseRenewalRequest]{}, fmt.Errorf("renewal request %s: %w", id, ErrNotFound)
}

func (r *SnapshotReader) SingleActiveAcceptedPayment(ctx context.Context, reference, user, provider string) (Contract[AcceptedAppPayment], error) {
	for _, c := range r.payments {
		p := c.Payload
		if p.Reference == reference && p.Sender == user && p.Provider == provider {
			return c, nil
		}
	}
	return Contract[AcceptedAppPayment]{}, ErrNotFound
}

func (r *SnapshotReader) SingleActiveLicense(ctx context.Context, user, provider string, licenseNum int64, dso string) (Contract[License], error) {
	for _, c := range r.licenses {
		p := c.Payload
		if p.User == user && p.Provider == provider && p.LicenseNum == licenseNum && p.Dso == dso {
			return c, nil
		}
	}
	return Contract[License]{}, ErrNotFound
}
