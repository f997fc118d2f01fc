package licensing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"licenseworks.dev/backend/ledger"
	"licenseworks.dev/backend/scan"
	"licenseworks.dev/backend/wire"
)

// LedgerWriter is the slice of the ledger client the workflows need.
type LedgerWriter interface {
	Create(ctx context.Context, party string, templateID wire.Identifier, entity any, commandID string) error
	ExerciseAndGetResult(ctx context.Context, party, contractID string, choice ledger.Choice, arg any, commandID string, disclosed []ledger.DisclosedContract) (any, error)
}

// ReferenceData is the slice of the scan client the workflows need.
type ReferenceData interface {
	GetAmuletRules(ctx context.Context) (ledger.DisclosedContract, error)
	GetOpenMiningRounds(ctx context.Context) ([]scan.OpenRound, error)
}

// Service orchestrates multi-step licensing writes: it gathers the
// independent reads a choice depends on, fails fast on the first gap,
// and submits one write with all gathered disclosures attached.
type Service struct {
	ledger LedgerWriter
	scan   ReferenceData
	reader ContractReader
	log    *slog.Logger
}

// NewService builds a Service.
func NewService(lw LedgerWriter, rd ReferenceData, cr ContractReader, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{ledger: lw, scan: rd, reader: cr, log: log}
}

// CompleteRenewal completes a license renewal: it locates the accepted
// payment and the active license named by the renewal request, fetches
// the amulet rules and the payment's open mining round as disclosed
// contracts, and exercises LicenseRenewalRequest_CompleteRenewal with
// all of them. It returns the renewed license's contract id.
//
// An empty commandID derives a deterministic id from the renewal
// request, so retries deduplicate on the ledger instead of re-executing.
func (s *Service) CompleteRenewal(ctx context.Context, actingParty string, renewalCid ContractID[LicenseRenewalRequest], commandID string) (newLicense ContractID[License], err error) {
	if commandID == "" {
		commandID = DeterministicCommandID(actingParty, "complete-renewal", string(renewalCid))
	}
	log := s.log.With("party", actingParty, "renewalCid", string(renewalCid), "commandId", commandID)
	defer func() {
		if err != nil {
			log.Error("license renewal failed", "err", err)
		} else {
			log.Info("license renewed", "newLicenseCid", string(newLicense))
		}
	}()

	renewal, err := s.reader.RenewalRequestByID(ctx, renewalCid)
	if err != nil {
		return "", err
	}
	req := renewal.Payload

	// The payment and license lookups are independent; issue both and
	// fail on the first miss.
	var (
		payment Contract[AcceptedAppPayment]
		license Contract[License]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		payment, err = s.reader.SingleActiveAcceptedPayment(gctx, req.Reference, req.User, req.Provider)
		if err != nil {
			return fmt.Errorf("accepted payment for reference %s: %w", req.Reference, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		license, err = s.reader.SingleActiveLicense(gctx, req.User, req.Provider, req.LicenseNum, req.Dso)
		if err != nil {
			return fmt.Errorf("license %d: %w", req.LicenseNum, err)
		}
		return nil
	})
	if err = g.Wait(); err != nil {
		return "", err
	}

	rules, round, err := s.transferContext(ctx, payment.Payload.Round)
	if err != nil {
		return "", err
	}

	arg := CompleteRenewal{
		PaymentCid: payment.ID,
		LicenseCid: license.ID,
		Context: AppTransferContext{
			AmuletRules:     rules.ContractID,
			OpenMiningRound: round.ContractID,
		},
	}
	res, err := s.ledger.ExerciseAndGetResult(
		ctx,
		actingParty,
		string(renewalCid),
		ledger.Choice{TemplateID: LicenseRenewalRequestTemplate, Name: ChoiceCompleteRenewal},
		arg,
		commandID,
		[]ledger.DisclosedContract{rules, round},
	)
	if err != nil {
		return "", err
	}
	cid, ok := res.(ContractID[License])
	if !ok {
		return "", &wire.Error{Kind: wire.KindDecode, Message: fmt.Sprintf("unexpected renewal result type %T", res)}
	}
	return cid, nil
}

// transferContext fetches the amulet rules and the open round matching
// roundNumber, concurrently. Disclosed contracts are acquired
// immediately before use; a missing round means the recorded round has
// since closed.
func (s *Service) transferContext(ctx context.Context, roundNumber int64) (rules, round ledger.DisclosedContract, err error) {
	var rounds []scan.OpenRound
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rules, err = s.scan.GetAmuletRules(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rounds, err = s.scan.GetOpenMiningRounds(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ledger.DisclosedContract{}, ledger.DisclosedContract{}, err
	}

	for _, r := range rounds {
		if r.Number == roundNumber {
			return rules, r.Contract, nil
		}
	}
	return ledger.DisclosedContract{}, ledger.DisclosedContract{},
		fmt.Errorf("open round %d: %w", roundNumber, ErrStaleRound)
}

// RenewLicense opens a renewal on an active license: the provider
// exercises License_Renew, which creates the LicenseRenewalRequest this
// service later completes, plus the payment request the user's wallet
// must accept.
func (s *Service) RenewLicense(ctx context.Context, providerParty string, licenseCid ContractID[License], params RenewLicense, commandID string) (res RenewLicenseResult, err error) {
	if commandID == "" {
		commandID = NewCommandID()
	}
	log := s.log.With("party", providerParty, "licenseCid", string(licenseCid), "commandId", commandID)
	defer func() {
		if err != nil {
			log.Error("license renewal request failed", "err", err)
		} else {
			log.Info("license renewal requested",
				"renewalRequestCid", string(res.RenewalRequestCid),
				"paymentRequestCid", string(res.PaymentRequestCid))
		}
	}()

	out, err := s.ledger.ExerciseAndGetResult(
		ctx,
		providerParty,
		string(licenseCid),
		ledger.Choice{TemplateID: LicenseTemplate, Name: ChoiceLicenseRenew},
		params,
		commandID,
		nil,
	)
	if err != nil {
		return RenewLicenseResult{}, err
	}
	res, ok := out.(RenewLicenseResult)
	if !ok {
		return RenewLicenseResult{}, &wire.Error{Kind: wire.KindDecode, Message: fmt.Sprintf("unexpected renew result type %T", out)}
	}
	return res, nil
}

// ExpireLicense archives an expired license. Actor authorization is the
// ledger's to enforce; the acting party is passed as the choice's actor.
func (s *Service) ExpireLicense(ctx context.Context, actingParty string, licenseCid ContractID[License], meta map[string]string, commandID string) error {
	if commandID == "" {
		commandID = DeterministicCommandID(actingParty, "expire-license", string(licenseCid))
	}
	_, err := s.ledger.ExerciseAndGetResult(
		ctx,
		actingParty,
		string(licenseCid),
		ledger.Choice{TemplateID: LicenseTemplate, Name: ChoiceLicenseExpire},
		ExpireLicense{Actor: actingParty, Meta: meta},
		commandID,
		nil,
	)
	return err
}

// RejectAppInstallRequest exercises AppInstallRequest_Reject as the
// provider, archiving the request.
func (s *Service) RejectAppInstallRequest(ctx context.Context, party string, requestCid ContractID[AppInstallRequest], meta map[string]string, commandID string) error {
	if commandID == "" {
		commandID = DeterministicCommandID(party, "reject-install", string(requestCid))
	}
	_, err := s.ledger.ExerciseAndGetResult(
		ctx,
		party,
		string(requestCid),
		ledger.Choice{TemplateID: AppInstallRequestTemplate, Name: ChoiceInstallReject},
		InstallReject{Meta: meta},
		commandID,
		nil,
	)
	return err
}

// CancelAppInstall exercises AppInstall_Cancel, archiving the install.
func (s *Service) CancelAppInstall(ctx context.Context, party string, installCid ContractID[AppInstall], meta map[string]string, commandID string) error {
	if commandID == "" {
		commandID = DeterministicCommandID(party, "cancel-install", string(installCid))
	}
	_, err := s.ledger.ExerciseAndGetResult(
		ctx,
		party,
		string(installCid),
		ledger.Choice{TemplateID: AppInstallTemplate, Name: ChoiceInstallCancel},
		InstallCancel{Actor: party, Meta: meta},
		commandID,
		nil,
	)
	return err
}

// SubmitAppInstallRequest creates an AppInstallRequest contract,
// fire-and-forget.
func (s *Service) SubmitAppInstallRequest(ctx context.Context, party string, req AppInstallRequest, commandID string) error {
	if commandID == "" {
		commandID = NewCommandID()
	}
	return s.ledger.Create(ctx, party, AppInstallRequestTemplate, req, commandID)
}

// AcceptAppInstallRequest exercises AppInstallRequest_Accept and
// returns the resulting AppInstall contract id.
func (s *Service) AcceptAppInstallRequest(ctx context.Context, party string, requestCid ContractID[AppInstallRequest], meta map[string]string, commandID string) (ContractID[AppInstall], error) {
	if commandID == "" {
		commandID = DeterministicCommandID(party, "accept-install", string(requestCid))
	}
	res, err := s.ledger.ExerciseAndGetResult(
		ctx,
		party,
		string(requestCid),
		ledger.Choice{TemplateID: AppInstallRequestTemplate, Name: ChoiceInstallAccept},
		InstallAccept{Meta: meta},
		commandID,
		nil,
	)
	if err != nil {
		return "", err
	}
	cid, ok := res.(ContractID[AppInstall])
	if !ok {
		return "", &wire.Error{Kind: wire.KindDecode, Message: fmt.Sprintf("unexpected accept result type %T", res)}
	}
	return cid, nil
}

// CreateLicense exercises AppInstall_CreateLicense on an install.
func (s *Service) CreateLicense(ctx context.Context, party string, installCid ContractID[AppInstall], meta map[string]string, commandID string) (CreateLicenseResult, error) {
	if commandID == "" {
		commandID = NewCommandID()
	}
	res, err := s.ledger.ExerciseAndGetResult(
		ctx,
		party,
		string(installCid),
		ledger.Choice{TemplateID: AppInstallTemplate, Name: ChoiceCreateLicense},
		CreateLicenseParams{Meta: meta},
		commandID,
		nil,
	)
	if err != nil {
		return CreateLicenseResult{}, err
	}
	out, ok := res.(CreateLicenseResult)
	if !ok {
		return CreateLicenseResult{}, &wire.Error{Kind: wire.KindDecode, Message: fmt.Sprintf("unexpected create-license result type %T", res)}
	}
	return out, nil
}

// IsNotFound reports whether err stems from a missing workflow input.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsStaleRound reports whether err means the recorded round has closed.
func IsStaleRound(err error) bool { return errors.Is(err, ErrStaleRound) }
