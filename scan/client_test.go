package scan

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"licenseworks.dev/backend/tokens"
)

func contractBody(templateID, contractID, payload string, blob []byte) string {
	return fmt.Sprintf(`{
		"template_id": %q,
		"contract_id": %q,
		"payload": %s,
		"created_event_blob": %q
	}`, templateID, contractID, payload, base64.StdEncoding.EncodeToString(blob))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:    srv.URL,
		Tokens:     tokens.Static("scan-token"),
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGetAmuletRules(t *testing.T) {
	blob := []byte{0x0a, 0x2f, 0x12}
	var sawAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/scan-proxy/amulet-rules" {
			http.NotFound(w, r)
			return
		}
		sawAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `{"amulet_rules": {"contract": %s}}`,
			contractBody("#splice-amulet:Splice.AmuletRules:AmuletRules", "00rules", `{}`, blob))
	}))

	dc, err := c.GetAmuletRules(context.Background())
	if err != nil {
		t.Fatalf("GetAmuletRules: %v", err)
	}
	if sawAuth != "Bearer scan-token" {
		t.Fatalf("authorization = %q", sawAuth)
	}
	if dc.ContractID != "00rules" {
		t.Fatalf("contractId = %q", dc.ContractID)
	}
	if dc.TemplateID.EntityName != "AmuletRules" {
		t.Fatalf("templateId = %v", dc.TemplateID)
	}
	// The attestation blob is carried verbatim, bytes not re-encoded.
	if string(dc.CreatedEventBlob) != string(blob) {
		t.Fatalf("blob = %x, want %x", dc.CreatedEventBlob, blob)
	}
}

func TestGetAmuletRulesAbsent(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amulet_rules": {}}`)
	}))
	_, err := c.GetAmuletRules(context.Background())
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestGetOpenMiningRounds(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/scan-proxy/open-and-issuing-mining-rounds" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `{"open_mining_rounds": [%s, %s]}`,
			fmt.Sprintf(`{"contract": %s}`, contractBody("#splice-amulet:Splice.Round:OpenMiningRound", "00round41", `{"round": {"number": "41"}}`, []byte("a"))),
			fmt.Sprintf(`{"contract": %s}`, contractBody("#splice-amulet:Splice.Round:OpenMiningRound", "00round42", `{"round": {"number": "42"}}`, []byte("b"))),
		)
	}))

	rounds, err := c.GetOpenMiningRounds(context.Background())
	if err != nil {
		t.Fatalf("GetOpenMiningRounds: %v", err)
	}
	if len(rounds) != 2 {
		t.Fatalf("rounds = %d, want 2", len(rounds))
	}
	if rounds[0].Number != 41 || rounds[1].Number != 42 {
		t.Fatalf("round numbers = %d, %d", rounds[0].Number, rounds[1].Number)
	}
	if rounds[1].Contract.ContractID != "00round42" {
		t.Fatalf("contract = %+v", rounds[1].Contract)
	}
}

func TestGetOpenMiningRoundsEmpty(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"open_mining_rounds": []}`)
	}))
	_, err := c.GetOpenMiningRounds(context.Background())
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestGetDsoPartyID(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"dso_party_id": "dso::ns"}`)
	}))
	dso, err := c.GetDsoPartyID(context.Background())
	if err != nil || dso != "dso::ns" {
		t.Fatalf("GetDsoPartyID = %q, %v", dso, err)
	}
}

func TestNotFoundStatus(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	_, err := c.GetDsoPartyID(context.Background())
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestUpstreamFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "proxy overloaded", http.StatusBadGateway)
	}))
	_, err := c.GetAmuletRules(context.Background())
	if !IsKind(err, KindUpstreamUnavailable) {
		t.Fatalf("err = %v, want UpstreamUnavailable", err)
	}
}

func TestTokenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent without a token")
	}))
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL: srv.URL,
		Tokens: tokens.SourceFunc(func(ctx context.Context) (string, error) {
			return "", tokens.ErrUnavailable
		}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.GetDsoPartyID(context.Background()); !IsKind(err, KindUpstreamUnavailable) {
		t.Fatalf("err = %v, want UpstreamUnavailable", err)
	}
}

func TestBadBlobEncoding(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"amulet_rules": {"contract": {
			"template_id": "#splice-amulet:Splice.AmuletRules:AmuletRules",
			"contract_id": "00rules",
			"payload": {},
			"created_event_blob": "not base64!"
		}}}`)
	}))
	_, err := c.GetAmuletRules(context.Background())
	if !IsKind(err, KindUpstreamUnavailable) {
		t.Fatalf("err = %v, want UpstreamUnavailable", err)
	}
}
