package licensing

import "context"

// ContractReader is the read-store port. The tabular query store lives
// outside this backend; workflows only need these three lookups, all
// returning already-decoded contract snapshots.
//
// Implementations return ErrNotFound (possibly wrapped) when no match
// exists.
type ContractReader interface {
	// RenewalRequestByID fetches a renewal request by contract id.
	RenewalRequestByID(ctx context.Context, id ContractID[LicenseRenewalRequest]) (Contract[LicenseRenewalRequest], error)

	// SingleActiveAcceptedPayment fetches the accepted payment matching
	// the renewal's payment reference and counterparties.
	SingleActiveAcceptedPayment(ctx context.Context, reference, user, provider string) (Contract[AcceptedAppPayment], error)

	// SingleActiveLicense fetches the license a renewal extends.
	SingleActiveLicense(ctx context.Context, user, provider string, licenseNum int64, dso string) (Contract[License], error)
}
