// licensed-ctl is the operator tool for the licensing backend: it
// grants ledger user rights, inspects users, and drives the install and
// renewal workflows against a running participant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"licenseworks.dev/backend/config"
	"licenseworks.dev/backend/ledger"
	"licenseworks.dev/backend/licensing"
	"licenseworks.dev/backend/scan"
	"licenseworks.dev/backend/tokens"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "grant-rights":
		return cmdGrantRights(args[1:], out, errOut)
	case "list-users":
		return cmdListUsers(args[1:], out, errOut)
	case "list-rights":
		return cmdListRights(args[1:], out, errOut)
	case "dso-party":
		return cmdDsoParty(args[1:], out, errOut)
	case "install-request":
		return cmdInstallRequest(args[1:], out, errOut)
	case "accept-install":
		return cmdAcceptInstall(args[1:], out, errOut)
	case "reject-install":
		return cmdRejectInstall(args[1:], out, errOut)
	case "cancel-install":
		return cmdCancelInstall(args[1:], out, errOut)
	case "create-license":
		return cmdCreateLicense(args[1:], out, errOut)
	case "start-renewal":
		return cmdStartRenewal(args[1:], out, errOut)
	case "renew":
		return cmdRenew(args[1:], out, errOut)
	case "expire":
		return cmdExpire(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "licensed-ctl: licensing backend operator tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  licensed-ctl grant-rights --act-as <party> [--read-as <party>]")
	fmt.Fprintln(w, "  licensed-ctl list-users")
	fmt.Fprintln(w, "  licensed-ctl list-rights --user <id>")
	fmt.Fprintln(w, "  licensed-ctl dso-party")
	fmt.Fprintln(w, "  licensed-ctl install-request --user <party> --provider <party> --dso <party> [--meta k=v ...]")
	fmt.Fprintln(w, "  licensed-ctl accept-install --request-cid <cid> [--meta k=v ...]")
	fmt.Fprintln(w, "  licensed-ctl reject-install --request-cid <cid> [--meta k=v ...]")
	fmt.Fprintln(w, "  licensed-ctl cancel-install --install-cid <cid> [--meta k=v ...]")
	fmt.Fprintln(w, "  licensed-ctl create-license --install-cid <cid> [--meta k=v ...]")
	fmt.Fprintln(w, "  licensed-ctl start-renewal --license-cid <cid> --fee <cc> --extension <dur> --payment-window <dur> [--description <text>]")
	fmt.Fprintln(w, "  licensed-ctl renew --renewal-cid <cid> --snapshot <file> [--command-id <id>]")
	fmt.Fprintln(w, "  licensed-ctl expire --license-cid <cid> [--meta k=v ...]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config <file>   configuration file (default config.yaml)")
	fmt.Fprintln(w, "  --party <party>   acting party (overrides config)")
	fmt.Fprintln(w, "  --timeout <dur>   overall command timeout (default 1m)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - renew reads payment and license contracts from an ACS snapshot file")
	fmt.Fprintln(w, "  - auth mode, ledger target and scan URL come from the config file")
}

type commonFlags struct {
	configPath string
	party      string
	timeout    time.Duration
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "Configuration file")
	fs.StringVar(&c.party, "party", "", "Acting party (overrides config)")
	fs.DurationVar(&c.timeout, "timeout", time.Minute, "Overall command timeout")
}

// env holds everything a subcommand needs after setup.
type env struct {
	cfg    config.Config
	party  string
	ledger *ledger.Client
	scan   *scan.Client
	log    *slog.Logger
}

func (c *commonFlags) setup(errOut io.Writer) (*env, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: logLevel(cfg.Log.Level)}))

	src, err := tokenSource(cfg.Auth)
	if err != nil {
		return nil, err
	}

	var metrics *ledger.Metrics
	if cfg.Metrics.Listen != "" {
		metrics = ledger.NewMetrics(nil)
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Listen, promhttp.Handler()); err != nil {
				log.Error("metrics listener stopped", "err", err)
			}
		}()
	}

	lc, err := ledger.Dial(ledger.Config{
		Target:           cfg.Ledger.Target,
		ApplicationID:    cfg.Ledger.ApplicationID,
		Tokens:           src,
		SubmitTimeout:    cfg.Ledger.SubmitTimeout,
		DialTimeout:      cfg.Ledger.DialTimeout,
		SubmitsPerSecond: cfg.Ledger.SubmitsPerSecond,
		Logger:           log,
		Metrics:          metrics,
	})
	if err != nil {
		return nil, err
	}

	sc, err := scan.New(scan.Config{
		BaseURL: cfg.Scan.BaseURL,
		Tokens:  src,
		Logger:  log,
	})
	if err != nil {
		lc.Close()
		return nil, err
	}

	party := c.party
	if party == "" {
		party = cfg.Ledger.Party
	}

	return &env{cfg: cfg, party: party, ledger: lc, scan: sc, log: log}, nil
}

func (e *env) close() {
	_ = e.ledger.Close()
}

func (e *env) requireParty(errOut io.Writer) bool {
	if e.party == "" {
		fmt.Fprintln(errOut, "no acting party: set --party or ledger.party in the config")
		return false
	}
	return true
}

func tokenSource(a config.Auth) (tokens.Source, error) {
	switch a.Mode {
	case "none":
		// Participants without auth ignore the empty bearer.
		return tokens.Static(""), nil
	case "oauth":
		return tokens.NewClientCredentials(tokens.ClientCredentialsConfig{
			TokenURL:     a.TokenURL,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Audience:     a.Audience,
			Scopes:       a.Scopes,
		})
	case "shared-secret":
		return &tokens.HS256Signer{
			Secret:   []byte(a.Secret),
			UserID:   a.UserID,
			Audience: a.Audience,
			TTL:      a.TTL,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", a.Mode)
	}
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// metaFlag collects repeated --meta k=v pairs.
type metaFlag map[string]string

func (m metaFlag) String() string {
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (m metaFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return errors.New("expected key=value")
	}
	m[strings.TrimSpace(k)] = val
	return nil
}

func cmdGrantRights(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("grant-rights", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var actAs, readAs string
	fs.StringVar(&actAs, "act-as", "", "Party the application user may act as")
	fs.StringVar(&readAs, "read-as", "", "Party the application user may read as")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if actAs == "" {
		fmt.Fprintln(errOut, "missing --act-as")
		return 2
	}
	if readAs == "" {
		readAs = actAs
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	if err := e.ledger.GrantUserRights(ctx, actAs, readAs); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "granted actAs=%s readAs=%s\n", actAs, readAs)
	return 0
}

func cmdListUsers(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	users, err := e.ledger.ListUsers(ctx)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, u := range users {
		fmt.Fprintf(out, "%s\t%s\n", u.ID, u.PrimaryParty)
	}
	return 0
}

func cmdListRights(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list-rights", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var userID string
	fs.StringVar(&userID, "user", "", "Ledger user id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if userID == "" {
		fmt.Fprintln(errOut, "missing --user")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	rights, err := e.ledger.ListUserRights(ctx, userID)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	for _, r := range rights {
		if r.Party == "" {
			fmt.Fprintf(out, "%s\n", r.Kind)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", r.Kind, r.Party)
	}
	return 0
}

func cmdDsoParty(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("dso-party", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()

	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	dso, err := e.scan.GetDsoPartyID(ctx)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, dso)
	return 0
}

func cmdInstallRequest(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("install-request", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var user, provider, dso string
	meta := metaFlag{}
	fs.StringVar(&user, "user", "", "Requesting user party")
	fs.StringVar(&provider, "provider", "", "Provider party")
	fs.StringVar(&dso, "dso", "", "DSO party")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if user == "" || provider == "" || dso == "" {
		fmt.Fprintln(errOut, "missing --user, --provider or --dso")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if e.party == "" {
		e.party = user
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	req := licensing.AppInstallRequest{Dso: dso, Provider: provider, User: user, Meta: meta}
	if err := svc.SubmitAppInstallRequest(ctx, e.party, req, ""); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, "install request submitted")
	return 0
}

func cmdAcceptInstall(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("accept-install", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var requestCid string
	meta := metaFlag{}
	fs.StringVar(&requestCid, "request-cid", "", "AppInstallRequest contract id")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if requestCid == "" {
		fmt.Fprintln(errOut, "missing --request-cid")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	installCid, err := svc.AcceptAppInstallRequest(ctx, e.party,
		licensing.ContractID[licensing.AppInstallRequest](requestCid), meta, "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, string(installCid))
	return 0
}

func cmdRejectInstall(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("reject-install", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var requestCid string
	meta := metaFlag{}
	fs.StringVar(&requestCid, "request-cid", "", "AppInstallRequest contract id")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if requestCid == "" {
		fmt.Fprintln(errOut, "missing --request-cid")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	if err := svc.RejectAppInstallRequest(ctx, e.party,
		licensing.ContractID[licensing.AppInstallRequest](requestCid), meta, ""); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, "install request rejected")
	return 0
}

func cmdCancelInstall(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("cancel-install", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var installCid string
	meta := metaFlag{}
	fs.StringVar(&installCid, "install-cid", "", "AppInstall contract id")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if installCid == "" {
		fmt.Fprintln(errOut, "missing --install-cid")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	if err := svc.CancelAppInstall(ctx, e.party,
		licensing.ContractID[licensing.AppInstall](installCid), meta, ""); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, "install canceled")
	return 0
}

func cmdCreateLicense(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("create-license", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var installCid string
	meta := metaFlag{}
	fs.StringVar(&installCid, "install-cid", "", "AppInstall contract id")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if installCid == "" {
		fmt.Fprintln(errOut, "missing --install-cid")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	res, err := svc.CreateLicense(ctx, e.party,
		licensing.ContractID[licensing.AppInstall](installCid), meta, "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "install: %s\nlicense: %s\n", res.InstallCid, res.LicenseCid)
	return 0
}

func cmdStartRenewal(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("start-renewal", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var licenseCid, fee, description string
	var extension, paymentWindow time.Duration
	fs.StringVar(&licenseCid, "license-cid", "", "License contract id")
	fs.StringVar(&fee, "fee", "", "Renewal fee in canton coin (decimal string)")
	fs.DurationVar(&extension, "extension", 30*24*time.Hour, "License extension granted on completion")
	fs.DurationVar(&paymentWindow, "payment-window", 24*time.Hour, "Window for the user to accept the payment")
	fs.StringVar(&description, "description", "", "Renewal description shown to the user")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if licenseCid == "" || fee == "" {
		fmt.Fprintln(errOut, "missing --license-cid or --fee")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	res, err := svc.RenewLicense(ctx, e.party,
		licensing.ContractID[licensing.License](licenseCid), licensing.RenewLicense{
			LicenseFeeCc:              fee,
			LicenseExtensionDuration:  licensing.Duration{Microseconds: extension.Microseconds()},
			PaymentAcceptanceDuration: licensing.Duration{Microseconds: paymentWindow.Microseconds()},
			Description:               description,
		}, "")
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "renewal request: %s\npayment request: %s\n", res.RenewalRequestCid, res.PaymentRequestCid)
	return 0
}

func cmdExpire(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("expire", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var licenseCid string
	meta := metaFlag{}
	fs.StringVar(&licenseCid, "license-cid", "", "License contract id")
	fs.Var(meta, "meta", "Metadata entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if licenseCid == "" {
		fmt.Fprintln(errOut, "missing --license-cid")
		return 2
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, nil, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	if err := svc.ExpireLicense(ctx, e.party,
		licensing.ContractID[licensing.License](licenseCid), meta, ""); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, "license expired")
	return 0
}

func cmdRenew(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("renew", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	var renewalCid, snapshotPath, commandID string
	fs.StringVar(&renewalCid, "renewal-cid", "", "LicenseRenewalRequest contract id")
	fs.StringVar(&snapshotPath, "snapshot", "", "ACS snapshot file with payment and license contracts")
	fs.StringVar(&commandID, "command-id", "", "Command id (optional; derived from the renewal when empty)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if renewalCid == "" || snapshotPath == "" {
		fmt.Fprintln(errOut, "missing --renewal-cid or --snapshot")
		return 2
	}

	reader, err := licensing.LoadSnapshot(snapshotPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	e, err := common.setup(errOut)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer e.close()
	if !e.requireParty(errOut) {
		return 2
	}

	svc := licensing.NewService(e.ledger, e.scan, reader, e.log)
	ctx, cancel := context.WithTimeout(context.Background(), common.timeout)
	defer cancel()
	newCid, err := svc.CompleteRenewal(ctx, e.party,
		licensing.ContractID[licensing.LicenseRenewalRequest](renewalCid), commandID)
	if err != nil {
		switch {
		case licensing.IsStaleRound(err):
			fmt.Fprintln(errOut, "renewal not submitted: the payment's mining round has closed; re-lock the payment and retry")
		case licensing.IsNotFound(err):
			fmt.Fprintln(errOut, "renewal not submitted: a required contract is missing from the snapshot")
		}
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, string(newCid))
	return 0
}
