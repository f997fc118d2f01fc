package licensing

import (
	"reflect"
	"testing"
	"time"

	"licenseworks.dev/backend/wire"
)

func TestTemplateRoundTrips(t *testing.T) {
	cases := []struct {
		name   string
		id     wire.Identifier
		entity any
	}{
		{
			name: "License",
			id:   LicenseTemplate,
			entity: License{
				Dso:        "dso::ns",
				Provider:   "provider::ns",
				User:       "alice::ns",
				LicenseNum: 7,
				ExpiresAt:  time.Date(2026, 9, 28, 12, 0, 0, 0, time.UTC),
			},
		},
		{
			name: "LicenseRenewalRequest",
			id:   LicenseRenewalRequestTemplate,
			entity: LicenseRenewalRequest{
				Provider:                 "provider::ns",
				User:                     "alice::ns",
				Dso:                      "dso::ns",
				LicenseNum:               7,
				LicenseFeeCc:             "100.0000000000",
				LicenseExtensionDuration: Duration{Microseconds: 2592000000000},
				Reference:                "payreq-001",
			},
		},
		{
			name: "AppInstallRequest",
			id:   AppInstallRequestTemplate,
			entity: AppInstallRequest{
				Dso:      "dso::ns",
				Provider: "provider::ns",
				User:     "alice::ns",
				Meta:     map[string]string{"tier": "standard"},
			},
		},
		{
			name: "AppInstall",
			id:   AppInstallTemplate,
			entity: AppInstall{
				Dso:                "dso::ns",
				Provider:           "provider::ns",
				User:               "alice::ns",
				Meta:               map[string]string{"tier": "standard"},
				NumLicensesCreated: 2,
			},
		},
		{
			name: "AcceptedAppPayment",
			id:   AcceptedAppPaymentTemplate,
			entity: AcceptedAppPayment{
				Sender:    "alice::ns",
				Provider:  "provider::ns",
				Dso:       "dso::ns",
				Reference: "payreq-001",
				Round:     42,
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := wire.EncodeTemplate(tc.id, tc.entity)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			out, err := wire.DecodeTemplate(tc.id, v)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(out, tc.entity) {
				t.Fatalf("round trip = %+v, want %+v", out, tc.entity)
			}
		})
	}
}

func TestTemplateEncodeWrongType(t *testing.T) {
	_, err := wire.EncodeTemplate(LicenseTemplate, AppInstall{})
	if !wire.IsKind(err, wire.KindSchemaMismatch) {
		t.Fatalf("kind = %v, want SchemaMismatch", err)
	}
}

func TestCompleteRenewalRoundTrip(t *testing.T) {
	arg := CompleteRenewal{
		PaymentCid: "00pay",
		LicenseCid: "00lic",
		Context: AppTransferContext{
			AmuletRules:     "00rules",
			OpenMiningRound: "00round",
		},
	}
	v, err := wire.EncodeChoiceArgument(LicenseRenewalRequestTemplate, ChoiceCompleteRenewal, arg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// The transfer context always carries an absent featured-app right.
	tcV, err := wire.GetField(v, "transferContext")
	if err != nil {
		t.Fatalf("transferContext: %v", err)
	}
	farV, err := wire.GetField(tcV, "featuredAppRight")
	if err != nil {
		t.Fatalf("featuredAppRight: %v", err)
	}
	if !wire.IsNone(farV) {
		t.Fatal("featuredAppRight should be none")
	}

	out, err := wire.DecodeChoiceArgument(LicenseRenewalRequestTemplate, ChoiceCompleteRenewal, v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, arg) {
		t.Fatalf("round trip = %+v, want %+v", out, arg)
	}
}

func TestCompleteRenewalResult(t *testing.T) {
	out, err := wire.DecodeChoiceResult(LicenseRenewalRequestTemplate, ChoiceCompleteRenewal, wire.ContractID("00newlic"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out != ContractID[License]("00newlic") {
		t.Fatalf("result = %v", out)
	}
}

func TestCreateLicenseChoice(t *testing.T) {
	arg := CreateLicenseParams{Meta: map[string]string{"seat": "14"}}
	v, err := wire.EncodeChoiceArgument(AppInstallTemplate, ChoiceCreateLicense, arg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := wire.DecodeChoiceArgument(AppInstallTemplate, ChoiceCreateLicense, v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, arg) {
		t.Fatalf("round trip = %+v, want %+v", out, arg)
	}

	res := wire.Record(
		wire.Field{Name: "installId", Value: wire.ContractID("00install")},
		wire.Field{Name: "licenseId", Value: wire.ContractID("00lic")},
	)
	got, err := wire.DecodeChoiceResult(AppInstallTemplate, ChoiceCreateLicense, res)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	want := CreateLicenseResult{InstallCid: "00install", LicenseCid: "00lic"}
	if got != want {
		t.Fatalf("result = %+v, want %+v", got, want)
	}
}

func TestInstallAcceptChoice(t *testing.T) {
	arg := InstallAccept{Meta: map[string]string{"env": "prod"}}
	v, err := wire.EncodeChoiceArgument(AppInstallRequestTemplate, ChoiceInstallAccept, arg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := wire.DecodeChoiceArgument(AppInstallRequestTemplate, ChoiceInstallAccept, v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, arg) {
		t.Fatalf("round trip = %+v, want %+v", out, arg)
	}
}

func TestRenewLicenseChoice(t *testing.T) {
	arg := RenewLicense{
		LicenseFeeCc:              "100.0000000000",
		LicenseExtensionDuration:  Duration{Microseconds: 2592000000000},
		PaymentAcceptanceDuration: Duration{Microseconds: 86400000000},
		Description:               "renewal 2026-10",
	}
	v, err := wire.EncodeChoiceArgument(LicenseTemplate, ChoiceLicenseRenew, arg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := wire.DecodeChoiceArgument(LicenseTemplate, ChoiceLicenseRenew, v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, arg) {
		t.Fatalf("round trip = %+v, want %+v", out, arg)
	}

	// The choice returns the (renewal request, payment request) pair.
	res := wire.Record(
		wire.Field{Name: "_1", Value: wire.ContractID("00renewal")},
		wire.Field{Name: "_2", Value: wire.ContractID("00payreq")},
	)
	got, err := wire.DecodeChoiceResult(LicenseTemplate, ChoiceLicenseRenew, res)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	want := RenewLicenseResult{RenewalRequestCid: "00renewal", PaymentRequestCid: "00payreq"}
	if got != want {
		t.Fatalf("result = %+v, want %+v", got, want)
	}
}

func TestExpireLicenseChoice(t *testing.T) {
	arg := ExpireLicense{Actor: "provider::ns", Meta: map[string]string{"reason": "lapsed"}}
	v, err := wire.EncodeChoiceArgument(LicenseTemplate, ChoiceLicenseExpire, arg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := wire.DecodeChoiceArgument(LicenseTemplate, ChoiceLicenseExpire, v)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out, arg) {
		t.Fatalf("round trip = %+v, want %+v", out, arg)
	}

	res, err := wire.DecodeChoiceResult(LicenseTemplate, ChoiceLicenseExpire, wire.Record())
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res != nil {
		t.Fatalf("result = %v, want nil", res)
	}
}

func TestInstallRejectAndCancelChoices(t *testing.T) {
	reject := InstallReject{Meta: map[string]string{"reason": "duplicate"}}
	v, err := wire.EncodeChoiceArgument(AppInstallRequestTemplate, ChoiceInstallReject, reject)
	if err != nil {
		t.Fatalf("encode reject: %v", err)
	}
	out, err := wire.DecodeChoiceArgument(AppInstallRequestTemplate, ChoiceInstallReject, v)
	if err != nil {
		t.Fatalf("decode reject: %v", err)
	}
	if !reflect.DeepEqual(out, reject) {
		t.Fatalf("reject round trip = %+v, want %+v", out, reject)
	}

	cancel := InstallCancel{Actor: "alice::ns", Meta: map[string]string{"reason": "offboarded"}}
	v, err = wire.EncodeChoiceArgument(AppInstallTemplate, ChoiceInstallCancel, cancel)
	if err != nil {
		t.Fatalf("encode cancel: %v", err)
	}
	out, err = wire.DecodeChoiceArgument(AppInstallTemplate, ChoiceInstallCancel, v)
	if err != nil {
		t.Fatalf("decode cancel: %v", err)
	}
	if !reflect.DeepEqual(out, cancel) {
		t.Fatalf("cancel round trip = %+v, want %+v", out, cancel)
	}
}

// TestRegisteredSchema pins the full set of registrations this package
// makes at init, driven off the registry itself.
func TestRegisteredSchema(t *testing.T) {
	wantTemplates := []wire.Identifier{
		AcceptedAppPaymentTemplate,
		AppInstallTemplate,
		AppInstallRequestTemplate,
		LicenseTemplate,
		LicenseRenewalRequestTemplate,
	}
	gotTemplates := wire.RegisteredTemplates()
	if len(gotTemplates) != len(wantTemplates) {
		t.Fatalf("templates = %v", gotTemplates)
	}
	seen := map[string]bool{}
	for _, id := range gotTemplates {
		seen[id.String()] = true
	}
	for _, id := range wantTemplates {
		if !seen[id.String()] {
			t.Fatalf("template %s not registered", id)
		}
	}

	wantChoices := [][2]string{
		{LicenseTemplate.String(), ChoiceLicenseRenew},
		{LicenseTemplate.String(), ChoiceLicenseExpire},
		{LicenseRenewalRequestTemplate.String(), ChoiceCompleteRenewal},
		{AppInstallTemplate.String(), ChoiceCreateLicense},
		{AppInstallTemplate.String(), ChoiceInstallCancel},
		{AppInstallRequestTemplate.String(), ChoiceInstallAccept},
		{AppInstallRequestTemplate.String(), ChoiceInstallReject},
	}
	registered := map[[2]string]bool{}
	for _, pair := range wire.RegisteredChoices() {
		registered[pair] = true
	}
	for _, pair := range wantChoices {
		if !registered[pair] {
			t.Errorf("choice %s on %s not registered", pair[1], pair[0])
		}
	}
	if len(registered) != len(wantChoices) {
		t.Fatalf("registered choices = %v", wire.RegisteredChoices())
	}
}

func TestDurationDays(t *testing.T) {
	d := Duration{Microseconds: 2592000000000}
	if d.Days() != 30 {
		t.Fatalf("Days() = %d, want 30", d.Days())
	}
}
