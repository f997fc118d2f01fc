// Package licensing holds the application's on-ledger data model and
// the workflows that write it: app installs, licenses, and license
// renewals paid through amulet transfers.
package licensing

import (
	"time"

	"licenseworks.dev/backend/wire"
)

// Template identifiers. Package ids use the package-name form accepted
// by the ledger's upgrade-aware identifier resolution.
var (
	LicenseTemplate               = wire.Identifier{PackageID: "#quickstart-licensing", ModuleName: "Licensing.License", EntityName: "License"}
	LicenseRenewalRequestTemplate = wire.Identifier{PackageID: "#quickstart-licensing", ModuleName: "Licensing.License", EntityName: "LicenseRenewalRequest"}
	AppInstallTemplate            = wire.Identifier{PackageID: "#quickstart-licensing", ModuleName: "Licensing.AppInstall", EntityName: "AppInstall"}
	AppInstallRequestTemplate     = wire.Identifier{PackageID: "#quickstart-licensing", ModuleName: "Licensing.AppInstall", EntityName: "AppInstallRequest"}
	AcceptedAppPaymentTemplate    = wire.Identifier{PackageID: "#splice-wallet-payments", ModuleName: "Splice.Wallet.Payment", EntityName: "AcceptedAppPayment"}
)

// Choice names.
const (
	ChoiceCompleteRenewal = "LicenseRenewalRequest_CompleteRenewal"
	ChoiceLicenseRenew    = "License_Renew"
	ChoiceLicenseExpire   = "License_Expire"
	ChoiceCreateLicense   = "AppInstall_CreateLicense"
	ChoiceInstallCancel   = "AppInstall_Cancel"
	ChoiceInstallAccept   = "AppInstallRequest_Accept"
	ChoiceInstallReject   = "AppInstallRequest_Reject"
)

// ContractID is an opaque wire contract id, typed by the template it
// refers to. Equality is value-based.
type ContractID[T any] string

// Contract pairs a contract id with its decoded payload. Produced by
// reads; read-only afterward.
type Contract[T any] struct {
	ID      ContractID[T]
	Payload T
}

// License is an active license granted by a provider to a user.
type License struct {
	Dso        string
	Provider   string
	User       string
	LicenseNum int64
	ExpiresAt  time.Time
}

// LicenseRenewalRequest asks the user to pay for a license extension.
// Reference names the payment request the user must accept.
type LicenseRenewalRequest struct {
	Provider                 string
	User                     string
	Dso                      string
	LicenseNum               int64
	LicenseFeeCc             string
	LicenseExtensionDuration Duration
	Reference                string
}

// Duration is a ledger relative time, carried in microseconds.
type Duration struct {
	Microseconds int64
}

// Days renders the duration in whole days, as shown to operators.
func (d Duration) Days() int64 {
	return d.Microseconds / 1000 / 1000 / 60 / 60 / 24
}

// AppInstallRequest is a user's request to install the application.
type AppInstallRequest struct {
	Dso      string
	Provider string
	User     string
	Meta     map[string]string
}

// AppInstall is an accepted install, the root for license issuance.
type AppInstall struct {
	Dso                string
	Provider           string
	User               string
	Meta               map[string]string
	NumLicensesCreated int64
}

// AcceptedAppPayment is a payment the user's wallet has accepted,
// locked against a specific mining round.
type AcceptedAppPayment struct {
	Sender    string
	Provider  string
	Dso       string
	Reference string
	Round     int64
}

// AppPaymentRequest is the wallet payment request a renewal creates for
// the user to accept. The backend only carries its contract id; the
// payload lives with the user's wallet.
type AppPaymentRequest struct{}

// RenewLicense is the argument of License_Renew. The provider exercises
// it to open a renewal: it creates the LicenseRenewalRequest and the
// payment request the user's wallet must accept.
type RenewLicense struct {
	LicenseFeeCc              string
	LicenseExtensionDuration  Duration
	PaymentAcceptanceDuration Duration
	Description               string
}

// RenewLicenseResult is its result.
type RenewLicenseResult struct {
	RenewalRequestCid ContractID[LicenseRenewalRequest]
	PaymentRequestCid ContractID[AppPaymentRequest]
}

// ExpireLicense is the argument of License_Expire. Actor must be the
// provider or the user; the choice archives an expired license.
type ExpireLicense struct {
	Actor string
	Meta  map[string]string
}

// InstallReject is the argument of AppInstallRequest_Reject.
type InstallReject struct {
	Meta map[string]string
}

// InstallCancel is the argument of AppInstall_Cancel.
type InstallCancel struct {
	Actor string
	Meta  map[string]string
}

// AppTransferContext carries the reference contracts an amulet transfer
// must be validated against.
type AppTransferContext struct {
	AmuletRules     string
	OpenMiningRound string
}

// CompleteRenewal is the argument of LicenseRenewalRequest_CompleteRenewal.
type CompleteRenewal struct {
	PaymentCid ContractID[AcceptedAppPayment]
	LicenseCid ContractID[License]
	Context    AppTransferContext
}

// CreateLicenseParams is the argument of AppInstall_CreateLicense.
type CreateLicenseParams struct {
	Meta map[string]string
}

// CreateLicenseResult is its result.
type CreateLicenseResult struct {
	InstallCid ContractID[AppInstall]
	LicenseCid ContractID[License]
}

// InstallAccept is the argument of AppInstallRequest_Accept.
type InstallAccept struct {
	Meta map[string]string
}
