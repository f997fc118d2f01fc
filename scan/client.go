// Package scan reads current-round reference data from the validator
// scan proxy: the amulet rules contract, the open mining rounds, and the
// DSO party id.
//
// These are pass-through reads. The proxy returns each contract with a
// base64 creation attestation blob that is used verbatim as a disclosed
// contract on subsequent ledger submissions; the blob is never mutated
// or re-derived here.
package scan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"licenseworks.dev/backend/blobid"
	"licenseworks.dev/backend/ledger"
	"licenseworks.dev/backend/tokens"
	"licenseworks.dev/backend/wire"
)

const (
	pathAmuletRules  = "/v0/scan-proxy/amulet-rules"
	pathMiningRounds = "/v0/scan-proxy/open-and-issuing-mining-rounds"
	pathDsoPartyID   = "/v0/scan-proxy/dso-party-id"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the proxy root, e.g. "http://validator:5003/api/validator".
	BaseURL string

	// Tokens supplies the bearer token; the proxy is a distinct audience
	// from the ledger, so this is usually a separate source.
	Tokens tokens.Source

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Client is a read-only client to the scan proxy. Safe for concurrent use.
type Client struct {
	base string
	http *http.Client
	toks tokens.Source
	log  *slog.Logger
}

// New builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, newError(KindUpstreamUnavailable, "scan proxy base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, newError(KindUpstreamUnavailable, "token source is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		http: hc,
		toks: cfg.Tokens,
		log:  log,
	}, nil
}

// OpenRound pairs an open mining round's number with its disclosed
// contract.
type OpenRound struct {
	Number   int64
	Contract ledger.DisclosedContract
}

// contractJSON is the proxy's contract envelope.
type contractJSON struct {
	TemplateID       string          `json:"template_id"`
	ContractID       string          `json:"contract_id"`
	Payload          json.RawMessage `json:"payload"`
	CreatedEventBlob string          `json:"created_event_blob"`
}

func (c contractJSON) disclosed() (ledger.DisclosedContract, error) {
	id, err := wire.ParseIdentifier(c.TemplateID)
	if err != nil {
		return ledger.DisclosedContract{}, wrapError(KindUpstreamUnavailable, fmt.Sprintf("invalid template id %q", c.TemplateID), err)
	}
	blob, err := base64.StdEncoding.DecodeString(c.CreatedEventBlob)
	if err != nil {
		return ledger.DisclosedContract{}, wrapError(KindUpstreamUnavailable, "invalid created event blob encoding", err)
	}
	return ledger.DisclosedContract{TemplateID: id, ContractID: c.ContractID, CreatedEventBlob: blob}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	tok, err := c.toks.Token(ctx)
	if err != nil {
		return wrapError(KindUpstreamUnavailable, "obtaining bearer token", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return wrapError(KindUpstreamUnavailable, "building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapError(KindUpstreamUnavailable, fmt.Sprintf("GET %s", path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return newError(KindNotFound, fmt.Sprintf("GET %s: not found", path))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return newError(KindUpstreamUnavailable, fmt.Sprintf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return wrapError(KindUpstreamUnavailable, fmt.Sprintf("GET %s: decoding response", path), err)
	}
	return nil
}

// GetAmuletRules fetches the current amulet rules contract as a
// disclosed contract.
func (c *Client) GetAmuletRules(ctx context.Context) (ledger.DisclosedContract, error) {
	var body struct {
		AmuletRules struct {
			Contract *contractJSON `json:"contract"`
		} `json:"amulet_rules"`
	}
	if err := c.get(ctx, pathAmuletRules, &body); err != nil {
		return ledger.DisclosedContract{}, err
	}
	if body.AmuletRules.Contract == nil {
		return ledger.DisclosedContract{}, newError(KindNotFound, "no amulet rules contract published")
	}
	dc, err := body.AmuletRules.Contract.disclosed()
	if err != nil {
		return ledger.DisclosedContract{}, err
	}
	c.log.Debug("fetched amulet rules",
		"contractId", dc.ContractID,
		"blobDigest", blobid.Digest(dc.CreatedEventBlob),
	)
	return dc, nil
}

// GetOpenMiningRounds fetches the currently open mining rounds with
// their disclosed contracts. Issuing rounds are not returned; only open
// rounds are usable as transfer context.
func (c *Client) GetOpenMiningRounds(ctx context.Context) ([]OpenRound, error) {
	var body struct {
		OpenMiningRounds []struct {
			Contract *contractJSON `json:"contract"`
		} `json:"open_mining_rounds"`
	}
	if err := c.get(ctx, pathMiningRounds, &body); err != nil {
		return nil, err
	}
	if len(body.OpenMiningRounds) == 0 {
		return nil, newError(KindNotFound, "no open mining rounds found")
	}
	rounds := make([]OpenRound, 0, len(body.OpenMiningRounds))
	for _, r := range body.OpenMiningRounds {
		if r.Contract == nil {
			continue
		}
		dc, err := r.Contract.disclosed()
		if err != nil {
			return nil, err
		}
		number, err := roundNumber(r.Contract.Payload)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, OpenRound{Number: number, Contract: dc})
	}
	c.log.Debug("fetched open mining rounds", "rounds", len(rounds))
	return rounds, nil
}

// GetDsoPartyID fetches the ledger operator's party id.
func (c *Client) GetDsoPartyID(ctx context.Context) (string, error) {
	var body struct {
		DsoPartyID string `json:"dso_party_id"`
	}
	if err := c.get(ctx, pathDsoPartyID, &body); err != nil {
		return "", err
	}
	if body.DsoPartyID == "" {
		return "", newError(KindNotFound, "no DSO party id published")
	}
	return body.DsoPartyID, nil
}

// roundNumber extracts payload.round.number, which the proxy encodes as
// a string-carried int64.
func roundNumber(payload json.RawMessage) (int64, error) {
	var p struct {
		Round struct {
			Number json.Number `json:"number"`
		} `json:"round"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return 0, wrapError(KindUpstreamUnavailable, "decoding round payload", err)
	}
	n, err := strconv.ParseInt(p.Round.Number.String(), 10, 64)
	if err != nil {
		return 0, wrapError(KindUpstreamUnavailable, fmt.Sprintf("invalid round number %q", p.Round.Number), err)
	}
	return n, nil
}
