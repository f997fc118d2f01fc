package licensing

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/wire"
)

// Wire codec registrations for every template and choice this backend
// submits or decodes. Registered once at init; the registry rejects
// collisions so schema drift surfaces at startup.

func init() {
	wire.MustRegisterTemplate(LicenseTemplate, wire.TemplateCodec{
		Encode: encodeLicense,
		Decode: decodeLicense,
	})
	wire.MustRegisterTemplate(LicenseRenewalRequestTemplate, wire.TemplateCodec{
		Encode: encodeRenewalRequest,
		Decode: decodeRenewalRequest,
	})
	wire.MustRegisterTemplate(AppInstallRequestTemplate, wire.TemplateCodec{
		Encode: encodeAppInstallRequest,
		Decode: decodeAppInstallRequest,
	})
	wire.MustRegisterTemplate(AppInstallTemplate, wire.TemplateCodec{
		Encode: encodeAppInstall,
		Decode: decodeAppInstall,
	})
	wire.MustRegisterTemplate(AcceptedAppPaymentTemplate, wire.TemplateCodec{
		Encode: encodeAcceptedPayment,
		Decode: decodeAcceptedPayment,
	})

	wire.MustRegisterChoice(LicenseRenewalRequestTemplate, ChoiceCompleteRenewal, wire.ChoiceCodec{
		EncodeArg:    encodeCompleteRenewal,
		DecodeArg:    decodeCompleteRenewal,
		DecodeResult: decodeLicenseCid,
	})
	wire.MustRegisterChoice(AppInstallTemplate, ChoiceCreateLicense, wire.ChoiceCodec{
		EncodeArg:    encodeCreateLicenseParams,
		DecodeArg:    decodeCreateLicenseParams,
		DecodeResult: decodeCreateLicenseResult,
	})
	wire.MustRegisterChoice(AppInstallRequestTemplate, ChoiceInstallAccept, wire.ChoiceCodec{
		EncodeArg:    encodeInstallAccept,
		DecodeArg:    decodeInstallAccept,
		DecodeResult: decodeAppInstallCid,
	})
	wire.MustRegisterChoice(LicenseTemplate, ChoiceLicenseRenew, wire.ChoiceCodec{
		EncodeArg:    encodeRenewLicense,
		DecodeArg:    decodeRenewLicense,
		DecodeResult: decodeRenewLicenseResult,
	})
	wire.MustRegisterChoice(LicenseTemplate, ChoiceLicenseExpire, wire.ChoiceCodec{
		EncodeArg:    encodeExpireLicense,
		DecodeArg:    decodeExpireLicense,
		DecodeResult: decodeUnit,
	})
	wire.MustRegisterChoice(AppInstallRequestTemplate, ChoiceInstallReject, wire.ChoiceCodec{
		EncodeArg:    encodeInstallReject,
		DecodeArg:    decodeInstallReject,
		DecodeResult: decodeUnit,
	})
	wire.MustRegisterChoice(AppInstallTemplate, ChoiceInstallCancel, wire.ChoiceCodec{
		EncodeArg:    encodeInstallCancel,
		DecodeArg:    decodeInstallCancel,
		DecodeResult: decodeUnit,
	})
}

func typeError(want string, got any) error {
	return &wire.Error{
		Kind:    wire.KindSchemaMismatch,
		Message: fmt.Sprintf("expected %s, got %T", want, got),
	}
}

// metaValue encodes a metadata map as {"values": {...}} with text
// entries, matching the ledger's text-map shape.
func metaValue(meta map[string]string) *structpb.Value {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]wire.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, wire.Field{Name: k, Value: wire.Text(meta[k])})
	}
	return wire.Record(wire.Field{Name: "values", Value: wire.Record(fields...)})
}

func decodeMeta(v *structpb.Value) (map[string]string, error) {
	values, err := wire.GetField(v, "values")
	if err != nil {
		return nil, err
	}
	fields, err := wire.RecordFields(values)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(fields))
	for k, fv := range fields {
		s, err := wire.AsText(fv)
		if err != nil {
			return nil, err
		}
		meta[k] = s
	}
	return meta, nil
}

func encodeLicense(entity any) (*structpb.Value, error) {
	l, ok := entity.(License)
	if !ok {
		return nil, typeError("licensing.License", entity)
	}
	return wire.Record(
		wire.Field{Name: "dso", Value: wire.Party(l.Dso)},
		wire.Field{Name: "provider", Value: wire.Party(l.Provider)},
		wire.Field{Name: "user", Value: wire.Party(l.User)},
		wire.Field{Name: "licenseNum", Value: wire.Int64(l.LicenseNum)},
		wire.Field{Name: "expiresAt", Value: wire.Timestamp(l.ExpiresAt)},
	), nil
}

func decodeLicense(v *structpb.Value) (any, error) {
	var l License
	var err error
	if l.Dso, err = textOf(v, "dso"); err != nil {
		return nil, err
	}
	if l.Provider, err = textOf(v, "provider"); err != nil {
		return nil, err
	}
	if l.User, err = textOf(v, "user"); err != nil {
		return nil, err
	}
	if l.LicenseNum, err = int64Of(v, "licenseNum"); err != nil {
		return nil, err
	}
	expiresV, err := wire.GetField(v, "expiresAt")
	if err != nil {
		return nil, err
	}
	if l.ExpiresAt, err = wire.AsTimestamp(expiresV); err != nil {
		return nil, err
	}
	return l, nil
}

func encodeRenewalRequest(entity any) (*structpb.Value, error) {
	r, ok := entity.(LicenseRenewalRequest)
	if !ok {
		return nil, typeError("licensing.LicenseRenewalRequest", entity)
	}
	return wire.Record(
		wire.Field{Name: "provider", Value: wire.Party(r.Provider)},
		wire.Field{Name: "user", Value: wire.Party(r.User)},
		wire.Field{Name: "dso", Value: wire.Party(r.Dso)},
		wire.Field{Name: "licenseNum", Value: wire.Int64(r.LicenseNum)},
		wire.Field{Name: "licenseFeeCc", Value: wire.Decimal(r.LicenseFeeCc)},
		wire.Field{Name: "licenseExtensionDuration", Value: wire.RelTimeMicros(r.LicenseExtensionDuration.Microseconds)},
		wire.Field{Name: "reference", Value: wire.ContractID(r.Reference)},
	), nil
}

func decodeRenewalRequest(v *structpb.Value) (any, error) {
	var r LicenseRenewalRequest
	var err error
	if r.Provider, err = textOf(v, "provider"); err != nil {
		return nil, err
	}
	if r.User, err = textOf(v, "user"); err != nil {
		return nil, err
	}
	if r.Dso, err = textOf(v, "dso"); err != nil {
		return nil, err
	}
	if r.LicenseNum, err = int64Of(v, "licenseNum"); err != nil {
		return nil, err
	}
	if r.LicenseFeeCc, err = textOf(v, "licenseFeeCc"); err != nil {
		return nil, err
	}
	durV, err := wire.GetField(v, "licenseExtensionDuration")
	if err != nil {
		return nil, err
	}
	us, err := wire.AsRelTimeMicros(durV)
	if err != nil {
		return nil, err
	}
	r.LicenseExtensionDuration = Duration{Microseconds: us}
	if r.Reference, err = textOf(v, "reference"); err != nil {
		return nil, err
	}
	return r, nil
}

func encodeAppInstallRequest(entity any) (*structpb.Value, error) {
	r, ok := entity.(AppInstallRequest)
	if !ok {
		return nil, typeError("licensing.AppInstallRequest", entity)
	}
	return wire.Record(
		wire.Field{Name: "dso", Value: wire.Party(r.Dso)},
		wire.Field{Name: "provider", Value: wire.Party(r.Provider)},
		wire.Field{Name: "user", Value: wire.Party(r.User)},
		wire.Field{Name: "meta", Value: metaValue(r.Meta)},
	), nil
}

func decodeAppInstallRequest(v *structpb.Value) (any, error) {
	var r AppInstallRequest
	var err error
	if r.Dso, err = textOf(v, "dso"); err != nil {
		return nil, err
	}
	if r.Provider, err = textOf(v, "provider"); err != nil {
		return nil, err
	}
	if r.User, err = textOf(v, "user"); err != nil {
		return nil, err
	}
	metaV, err := wire.GetField(v, "meta")
	if err != nil {
		return nil, err
	}
	if r.Meta, err = decodeMeta(metaV); err != nil {
		return nil, err
	}
	return r, nil
}

func encodeAppInstall(entity any) (*structpb.Value, error) {
	a, ok := entity.(AppInstall)
	if !ok {
		return nil, typeError("licensing.AppInstall", entity)
	}
	return wire.Record(
		wire.Field{Name: "dso", Value: wire.Party(a.Dso)},
		wire.Field{Name: "provider", Value: wire.Party(a.Provider)},
		wire.Field{Name: "user", Value: wire.Party(a.User)},
		wire.Field{Name: "meta", Value: metaValue(a.Meta)},
		wire.Field{Name: "numLicensesCreated", Value: wire.Int64(a.NumLicensesCreated)},
	), nil
}

func decodeAppInstall(v *structpb.Value) (any, error) {
	var a AppInstall
	var err error
	if a.Dso, err = textOf(v, "dso"); err != nil {
		return nil, err
	}
	if a.Provider, err = textOf(v, "provider"); err != nil {
		return nil, err
	}
	if a.User, err = textOf(v, "user"); err != nil {
		return nil, err
	}
	metaV, err := wire.GetField(v, "meta")
	if err != nil {
		return nil, err
	}
	if a.Meta, err = decodeMeta(metaV); err != nil {
		return nil, err
	}
	if a.NumLicensesCreated, err = int64Of(v, "numLicensesCreated"); err != nil {
		return nil, err
	}
	return a, nil
}

func encodeAcceptedPayment(entity any) (*structpb.Value, error) {
	p, ok := entity.(AcceptedAppPayment)
	if !ok {
		return nil, typeError("licensing.AcceptedAppPayment", entity)
	}
	return wire.Record(
		wire.Field{Name: "sender", Value: wire.Party(p.Sender)},
		wire.Field{Name: "provider", Value: wire.Party(p.Provider)},
		wire.Field{Name: "dso", Value: wire.Party(p.Dso)},
		wire.Field{Name: "reference", Value: wire.ContractID(p.Reference)},
		wire.Field{Name: "round", Value: wire.Record(
			wire.Field{Name: "number", Value: wire.Int64(p.Round)},
		)},
	), nil
}

func decodeAcceptedPayment(v *structpb.Value) (any, error) {
	var p AcceptedAppPayment
	var err error
	if p.Sender, err = textOf(v, "sender"); err != nil {
		return nil, err
	}
	if p.Provider, err = textOf(v, "provider"); err != nil {
		return nil, err
	}
	if p.Dso, err = textOf(v, "dso"); err != nil {
		return nil, err
	}
	if p.Reference, err = textOf(v, "reference"); err != nil {
		return nil, err
	}
	roundV, err := wire.GetField(v, "round")
	if err != nil {
		return nil, err
	}
	if p.Round, err = int64Of(roundV, "number"); err != nil {
		return nil, err
	}
	return p, nil
}

func encodeCompleteRenewal(arg any) (*structpb.Value, error) {
	c, ok := arg.(CompleteRenewal)
	if !ok {
		return nil, typeError("licensing.CompleteRenewal", arg)
	}
	return wire.Record(
		wire.Field{Name: "paymentCid", Value: wire.ContractID(string(c.PaymentCid))},
		wire.Field{Name: "licenseCid", Value: wire.ContractID(string(c.LicenseCid))},
		wire.Field{Name: "transferContext", Value: wire.Record(
			wire.Field{Name: "amuletRules", Value: wire.ContractID(c.Context.AmuletRules)},
			wire.Field{Name: "openMiningRound", Value: wire.ContractID(c.Context.OpenMiningRound)},
			wire.Field{Name: "featuredAppRight", Value: wire.None()},
		)},
	), nil
}

func decodeCompleteRenewal(v *structpb.Value) (any, error) {
	var c CompleteRenewal
	payment, err := textOf(v, "paymentCid")
	if err != nil {
		return nil, err
	}
	c.PaymentCid = ContractID[AcceptedAppPayment](payment)
	license, err := textOf(v, "licenseCid")
	if err != nil {
		return nil, err
	}
	c.LicenseCid = ContractID[License](license)
	tcV, err := wire.GetField(v, "transferContext")
	if err != nil {
		return nil, err
	}
	if c.Context.AmuletRules, err = textOf(tcV, "amuletRules"); err != nil {
		return nil, err
	}
	if c.Context.OpenMiningRound, err = textOf(tcV, "openMiningRound"); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeLicenseCid(v *structpb.Value) (any, error) {
	s, err := wire.AsText(v)
	if err != nil {
		return nil, err
	}
	return ContractID[License](s), nil
}

func decodeAppInstallCid(v *structpb.Value) (any, error) {
	s, err := wire.AsText(v)
	if err != nil {
		return nil, err
	}
	return ContractID[AppInstall](s), nil
}

func encodeCreateLicenseParams(arg any) (*structpb.Value, error) {
	p, ok := arg.(CreateLicenseParams)
	if !ok {
		return nil, typeError("licensing.CreateLicenseParams", arg)
	}
	return wire.Record(wire.Field{Name: "params", Value: metaValue(p.Meta)}), nil
}

func decodeCreateLicenseParams(v *structpb.Value) (any, error) {
	paramsV, err := wire.GetField(v, "params")
	if err != nil {
		return nil, err
	}
	meta, err := decodeMeta(paramsV)
	if err != nil {
		return nil, err
	}
	return CreateLicenseParams{Meta: meta}, nil
}

func decodeCreateLicenseResult(v *structpb.Value) (any, error) {
	var r CreateLicenseResult
	install, err := textOf(v, "installId")
	if err != nil {
		return nil, err
	}
	r.InstallCid = ContractID[AppInstall](install)
	license, err := textOf(v, "licenseId")
	if err != nil {
		return nil, err
	}
	r.LicenseCid = ContractID[License](license)
	return r, nil
}

func encodeInstallAccept(arg any) (*structpb.Value, error) {
	a, ok := arg.(InstallAccept)
	if !ok {
		return nil, typeError("licensing.InstallAccept", arg)
	}
	return wire.Record(wire.Field{Name: "installMeta", Value: metaValue(a.Meta)}), nil
}

func decodeInstallAccept(v *structpb.Value) (any, error) {
	metaV, err := wire.GetField(v, "installMeta")
	if err != nil {
		return nil, err
	}
	meta, err := decodeMeta(metaV)
	if err != nil {
		return nil, err
	}
	return InstallAccept{Meta: meta}, nil
}

func encodeRenewLicense(arg any) (*structpb.Value, error) {
	r, ok := arg.(RenewLicense)
	if !ok {
		return nil, typeError("licensing.RenewLicense", arg)
	}
	return wire.Record(
		wire.Field{Name: "licenseFeeCc", Value: wire.Decimal(r.LicenseFeeCc)},
		wire.Field{Name: "licenseExtensionDuration", Value: wire.RelTimeMicros(r.LicenseExtensionDuration.Microseconds)},
		wire.Field{Name: "paymentAcceptanceDuration", Value: wire.RelTimeMicros(r.PaymentAcceptanceDuration.Microseconds)},
		wire.Field{Name: "description", Value: wire.Text(r.Description)},
	), nil
}

func decodeRenewLicense(v *structpb.Value) (any, error) {
	var r RenewLicense
	var err error
	if r.LicenseFeeCc, err = textOf(v, "licenseFeeCc"); err != nil {
		return nil, err
	}
	extV, err := wire.GetField(v, "licenseExtensionDuration")
	if err != nil {
		return nil, err
	}
	ext, err := wire.AsRelTimeMicros(extV)
	if err != nil {
		return nil, err
	}
	r.LicenseExtensionDuration = Duration{Microseconds: ext}
	payV, err := wire.GetField(v, "paymentAcceptanceDuration")
	if err != nil {
		return nil, err
	}
	pay, err := wire.AsRelTimeMicros(payV)
	if err != nil {
		return nil, err
	}
	r.PaymentAcceptanceDuration = Duration{Microseconds: pay}
	if r.Description, err = textOf(v, "description"); err != nil {
		return nil, err
	}
	return r, nil
}

// decodeRenewLicenseResult parses the two-tuple of renewal request and
// payment request contract ids.
func decodeRenewLicenseResult(v *structpb.Value) (any, error) {
	var r RenewLicenseResult
	renewal, err := textOf(v, "_1")
	if err != nil {
		return nil, err
	}
	r.RenewalRequestCid = ContractID[LicenseRenewalRequest](renewal)
	payment, err := textOf(v, "_2")
	if err != nil {
		return nil, err
	}
	r.PaymentRequestCid = ContractID[AppPaymentRequest](payment)
	return r, nil
}

func encodeExpireLicense(arg any) (*structpb.Value, error) {
	e, ok := arg.(ExpireLicense)
	if !ok {
		return nil, typeError("licensing.ExpireLicense", arg)
	}
	return wire.Record(
		wire.Field{Name: "actor", Value: wire.Party(e.Actor)},
		wire.Field{Name: "meta", Value: metaValue(e.Meta)},
	), nil
}

func decodeExpireLicense(v *structpb.Value) (any, error) {
	var e ExpireLicense
	var err error
	if e.Actor, err = textOf(v, "actor"); err != nil {
		return nil, err
	}
	metaV, err := wire.GetField(v, "meta")
	if err != nil {
		return nil, err
	}
	if e.Meta, err = decodeMeta(metaV); err != nil {
		return nil, err
	}
	return e, nil
}

func encodeInstallReject(arg any) (*structpb.Value, error) {
	r, ok := arg.(InstallReject)
	if !ok {
		return nil, typeError("licensing.InstallReject", arg)
	}
	return wire.Record(wire.Field{Name: "meta", Value: metaValue(r.Meta)}), nil
}

func decodeInstallReject(v *structpb.Value) (any, error) {
	metaV, err := wire.GetField(v, "meta")
	if err != nil {
		return nil, err
	}
	meta, err := decodeMeta(metaV)
	if err != nil {
		return nil, err
	}
	return InstallReject{Meta: meta}, nil
}

func encodeInstallCancel(arg any) (*structpb.Value, error) {
	c, ok := arg.(InstallCancel)
	if !ok {
		return nil, typeError("licensing.InstallCancel", arg)
	}
	return wire.Record(
		wire.Field{Name: "actor", Value: wire.Party(c.Actor)},
		wire.Field{Name: "meta", Value: metaValue(c.Meta)},
	), nil
}

func decodeInstallCancel(v *structpb.Value) (any, error) {
	var c InstallCancel
	var err error
	if c.Actor, err = textOf(v, "actor"); err != nil {
		return nil, err
	}
	metaV, err := wire.GetField(v, "meta")
	if err != nil {
		return nil, err
	}
	if c.Meta, err = decodeMeta(metaV); err != nil {
		return nil, err
	}
	return c, nil
}

// decodeUnit accepts the empty record an archiving choice returns.
func decodeUnit(*structpb.Value) (any, error) {
	return nil, nil
}

func textOf(v *structpb.Value, name string) (string, error) {
	f, err := wire.GetField(v, name)
	if err != nil {
		return "", err
	}
	return wire.AsText(f)
}

func int64Of(v *structpb.Value, name string) (int64, error) {
	f, err := wire.GetField(v, name)
	if err != nil {
		return 0, err
	}
	return wire.AsInt64(f)
}
