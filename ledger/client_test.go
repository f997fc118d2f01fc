package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/ledger"
	"licenseworks.dev/backend/ledger/ledgertest"
	"licenseworks.dev/backend/tokens"
	"licenseworks.dev/backend/wire"
)

var gadgetID = wire.Identifier{PackageID: "#ledgertest", ModuleName: "Test.Fixture", EntityName: "Gadget"}

const gadgetFrob = "Gadget_Frob"

type gadget struct {
	Owner string
	Size  int64
}

func init() {
	wire.MustRegisterTemplate(gadgetID, wire.TemplateCodec{
		Encode: func(entity any) (*structpb.Value, error) {
			g := entity.(gadget)
			return wire.Record(
				wire.Field{Name: "owner", Value: wire.Party(g.Owner)},
				wire.Field{Name: "size", Value: wire.Int64(g.Size)},
			), nil
		},
		Decode: func(v *structpb.Value) (any, error) {
			ownerV, err := wire.GetField(v, "owner")
			if err != nil {
				return nil, err
			}
			owner, err := wire.AsText(ownerV)
			if err != nil {
				return nil, err
			}
			sizeV, err := wire.GetField(v, "size")
			if err != nil {
				return nil, err
			}
			size, err := wire.AsInt64(sizeV)
			if err != nil {
				return nil, err
			}
			return gadget{Owner: owner, Size: size}, nil
		},
	})
	wire.MustRegisterChoice(gadgetID, gadgetFrob, wire.ChoiceCodec{
		EncodeArg:    func(arg any) (*structpb.Value, error) { return wire.Text(arg.(string)), nil },
		DecodeArg:    func(v *structpb.Value) (any, error) { return wire.AsText(v) },
		DecodeResult: func(v *structpb.Value) (any, error) { return wire.AsText(v) },
	})
}

func newClient(t *testing.T, srv *ledgertest.Server, mutate func(*ledger.Config)) *ledger.Client {
	t.Helper()
	cfg := ledger.Config{
		Target:        "bufnet",
		ApplicationID: "backend-tests",
		Tokens:        tokens.Static("test-token"),
		Dialer:        ledgertest.Start(t, srv),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := ledger.Dial(cfg)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialValidation(t *testing.T) {
	if _, err := ledger.Dial(ledger.Config{ApplicationID: "a", Tokens: tokens.Static("t")}); err == nil {
		t.Fatal("missing target should fail")
	}
	if _, err := ledger.Dial(ledger.Config{Target: "x", Tokens: tokens.Static("t")}); err == nil {
		t.Fatal("missing application id should fail")
	}
	if _, err := ledger.Dial(ledger.Config{Target: "x", ApplicationID: "a"}); err == nil {
		t.Fatal("missing token source should fail")
	}
}

func TestCreateSubmitsBatch(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	err := c.Create(context.Background(), "alice::ns", gadgetID, gadget{Owner: "alice::ns", Size: 3}, "cmd-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	subs := srv.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	req := subs[0]
	if req.ApplicationID != "backend-tests" || req.CommandID != "cmd-1" {
		t.Fatalf("request = %+v", req)
	}
	if len(req.ActAs) != 1 || req.ActAs[0] != "alice::ns" {
		t.Fatalf("actAs = %v", req.ActAs)
	}
	if len(req.ReadAs) != 1 || req.ReadAs[0] != "alice::ns" {
		t.Fatalf("readAs = %v", req.ReadAs)
	}
	create, ok := req.Commands[0].(ledger.CreateCommand)
	if !ok {
		t.Fatalf("command = %T", req.Commands[0])
	}
	if create.TemplateID != gadgetID {
		t.Fatalf("templateId = %v", create.TemplateID)
	}

	toks := srv.BearerTokens()
	if len(toks) != 1 || toks[0] != "Bearer test-token" {
		t.Fatalf("tokens = %v", toks)
	}
}

func TestExerciseAndGetResult(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	disclosed := []ledger.DisclosedContract{{
		TemplateID:       gadgetID,
		ContractID:       "00ref",
		CreatedEventBlob: []byte{0x0a, 0x01, 0x02},
	}}
	// The stub echoes the choice argument as the exercise result.
	res, err := c.ExerciseAndGetResult(context.Background(), "alice::ns", "00gadget",
		ledger.Choice{TemplateID: gadgetID, Name: gadgetFrob}, "turn", "cmd-2", disclosed)
	if err != nil {
		t.Fatalf("ExerciseAndGetResult: %v", err)
	}
	if res != "turn" {
		t.Fatalf("result = %v", res)
	}

	subs := srv.Submissions()
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if len(subs[0].Disclosed) != 1 {
		t.Fatalf("disclosed = %d, want 1", len(subs[0].Disclosed))
	}
	dc := subs[0].Disclosed[0]
	if dc.ContractID != "00ref" || string(dc.CreatedEventBlob) != "\x0a\x01\x02" {
		t.Fatalf("disclosed contract = %+v", dc)
	}
}

func TestSubmitAndWaitIdempotent(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	calls := 0
	srv.SetOutcome(func(req *ledger.SubmitRequest) (*ledger.TransactionTree, error) {
		calls++
		return &ledger.TransactionTree{
			Offset:       int64(100 + calls),
			RootEventIDs: []string{"#0"},
			EventsByID: map[string]ledger.TreeEvent{
				"#0": {Kind: ledger.EventExercised, EventID: "#0", ExerciseResult: wire.Text("done")},
			},
		}, nil
	})

	cmds := []ledger.Command{ledger.ExerciseCommand{
		TemplateID: gadgetID, ContractID: "00gadget", Choice: gadgetFrob, Argument: wire.Text("x"),
	}}
	first, err := c.SubmitAndWait(context.Background(), "alice::ns", cmds, "cmd-3", nil)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := c.SubmitAndWait(context.Background(), "alice::ns", cmds, "cmd-3", nil)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if calls != 1 {
		t.Fatalf("outcome executed %d times, want 1", calls)
	}
	if first.Offset != second.Offset {
		t.Fatalf("offsets differ: %d vs %d", first.Offset, second.Offset)
	}
}

func TestExerciseIdempotent(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	choice := ledger.Choice{TemplateID: gadgetID, Name: gadgetFrob}
	first, err := c.ExerciseAndGetResult(context.Background(), "alice::ns", "00gadget", choice, "turn", "cmd-dup", nil)
	if err != nil {
		t.Fatalf("first exercise: %v", err)
	}
	second, err := c.ExerciseAndGetResult(context.Background(), "alice::ns", "00gadget", choice, "turn", "cmd-dup", nil)
	if err != nil {
		t.Fatalf("second exercise: %v", err)
	}
	if first != second {
		t.Fatalf("resubmission changed the result: %v vs %v", first, second)
	}
}

func TestSubmitAndWaitTimeout(t *testing.T) {
	srv := ledgertest.New()
	srv.SetDelay(time.Second)
	c := newClient(t, srv, func(cfg *ledger.Config) {
		cfg.SubmitTimeout = 50 * time.Millisecond
	})

	cmds := []ledger.Command{ledger.ExerciseCommand{
		TemplateID: gadgetID, ContractID: "00gadget", Choice: gadgetFrob, Argument: wire.Text("x"),
	}}
	_, err := c.SubmitAndWait(context.Background(), "alice::ns", cmds, "cmd-4", nil)
	if !ledger.IsKind(err, ledger.KindTimeout) {
		t.Fatalf("err = %v, want Timeout", err)
	}
	if !ledger.OutcomeUnknown(err) {
		t.Fatal("a timed-out wait leaves the outcome unknown")
	}
}

func TestSubmitAndWaitCommandRejected(t *testing.T) {
	srv := ledgertest.New()
	srv.SetOutcome(func(req *ledger.SubmitRequest) (*ledger.TransactionTree, error) {
		return nil, status.Error(codes.FailedPrecondition, "contract archived")
	})
	c := newClient(t, srv, nil)

	cmds := []ledger.Command{ledger.ExerciseCommand{
		TemplateID: gadgetID, ContractID: "00gone", Choice: gadgetFrob, Argument: wire.Text("x"),
	}}
	_, err := c.SubmitAndWait(context.Background(), "alice::ns", cmds, "cmd-5", nil)
	if !ledger.IsKind(err, ledger.KindCommandRejected) {
		t.Fatalf("err = %v, want CommandRejected", err)
	}
	if ledger.OutcomeUnknown(err) {
		t.Fatal("a rejection is a definite outcome")
	}
}

func TestTokenFailureIsUnauthenticated(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, func(cfg *ledger.Config) {
		cfg.Tokens = tokens.SourceFunc(func(ctx context.Context) (string, error) {
			return "", tokens.ErrUnavailable
		})
	})

	err := c.Create(context.Background(), "alice::ns", gadgetID, gadget{Owner: "alice::ns"}, "cmd-6")
	if !ledger.IsKind(err, ledger.KindUnauthenticated) {
		t.Fatalf("err = %v, want Unauthenticated", err)
	}
	if len(srv.Submissions()) != 0 {
		t.Fatal("no batch should reach the ledger without a token")
	}
}

func TestNoRootEvent(t *testing.T) {
	srv := ledgertest.New()
	srv.SetOutcome(func(req *ledger.SubmitRequest) (*ledger.TransactionTree, error) {
		return &ledger.TransactionTree{Offset: 9}, nil
	})
	c := newClient(t, srv, nil)

	_, err := c.ExerciseAndGetResult(context.Background(), "alice::ns", "00gadget",
		ledger.Choice{TemplateID: gadgetID, Name: gadgetFrob}, "turn", "cmd-7", nil)
	if !ledger.IsKind(err, ledger.KindNoRootEvent) {
		t.Fatalf("err = %v, want NoRootEvent", err)
	}
}

func TestGrantAndListUserRights(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	if err := c.GrantUserRights(context.Background(), "alice::ns", "alice::ns"); err != nil {
		t.Fatalf("GrantUserRights: %v", err)
	}

	rights, err := c.ListUserRights(context.Background(), "backend-tests")
	if err != nil {
		t.Fatalf("ListUserRights: %v", err)
	}
	if len(rights) != 2 {
		t.Fatalf("rights = %+v, want 2", rights)
	}
	kinds := map[ledger.RightKind]string{}
	for _, r := range rights {
		kinds[r.Kind] = r.Party
	}
	if kinds[ledger.RightCanActAs] != "alice::ns" || kinds[ledger.RightCanReadAs] != "alice::ns" {
		t.Fatalf("rights = %+v", rights)
	}
}

func TestGetUserAndListUsers(t *testing.T) {
	srv := ledgertest.New()
	srv.SetUser(ledger.User{ID: "backend-tests", PrimaryParty: "provider::ns"})
	srv.SetUser(ledger.User{ID: "participant_admin"})
	c := newClient(t, srv, nil)

	u, err := c.GetUser(context.Background(), "backend-tests")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.ID != "backend-tests" || u.PrimaryParty != "provider::ns" {
		t.Fatalf("user = %+v", u)
	}

	// A user without a primary party is legal on a real ledger.
	u, err = c.GetUser(context.Background(), "participant_admin")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.PrimaryParty != "" {
		t.Fatalf("primaryParty = %q, want empty", u.PrimaryParty)
	}

	users, err := c.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %+v, want 2", users)
	}
	if users[0].ID != "backend-tests" || users[1].ID != "participant_admin" {
		t.Fatalf("users = %+v", users)
	}
}

func TestGetUserNotFound(t *testing.T) {
	srv := ledgertest.New()
	c := newClient(t, srv, nil)

	_, err := c.GetUser(context.Background(), "nobody")
	if !ledger.IsKind(err, ledger.KindCommandRejected) {
		t.Fatalf("err = %v, want CommandRejected", err)
	}
}

func TestMetricsCountFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := ledger.NewMetrics(reg)

	srv := ledgertest.New()
	srv.SetOutcome(func(req *ledger.SubmitRequest) (*ledger.TransactionTree, error) {
		return nil, status.Error(codes.FailedPrecondition, "no")
	})
	c := newClient(t, srv, func(cfg *ledger.Config) {
		cfg.Metrics = metrics
	})

	cmds := []ledger.Command{ledger.ExerciseCommand{
		TemplateID: gadgetID, ContractID: "00g", Choice: gadgetFrob, Argument: wire.Text("x"),
	}}
	_, _ = c.SubmitAndWait(context.Background(), "alice::ns", cmds, "cmd-8", nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var failureCount float64
	for _, mf := range mfs {
		if mf.GetName() != "ledger_client_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == "submit_and_wait" && labels["kind"] == string(ledger.KindCommandRejected) {
				failureCount = m.GetCounter().GetValue()
			}
		}
	}
	if failureCount != 1 {
		t.Fatalf("failure count = %v, want 1", failureCount)
	}
}
