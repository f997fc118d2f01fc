package ledger

import (
	"context"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"licenseworks.dev/backend/tokens"
	"licenseworks.dev/backend/wire"
)

// Choice names an exercisable choice on a template.
type Choice struct {
	TemplateID wire.Identifier
	Name       string
}

// Config configures a Client.
type Config struct {
	// Target is the ledger gateway address, host:port.
	Target string

	// ApplicationID scopes command deduplication and user management.
	// Injected explicitly; never read from ambient process state.
	ApplicationID string

	// Tokens supplies the bearer token attached to every outbound call.
	Tokens tokens.Source

	// SubmitTimeout bounds each submit-and-wait. Zero means 30 seconds.
	SubmitTimeout time.Duration

	// DialTimeout applies to the initial dial when non-zero.
	DialTimeout time.Duration

	// SubmitsPerSecond optionally limits outbound submissions. Zero
	// disables the limiter.
	SubmitsPerSecond float64

	// Dialer overrides the transport dialer; in-process tests use this
	// to reach a bufconn listener.
	Dialer func(ctx context.Context, target string) (net.Conn, error)

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *Metrics
}

// Client owns one authenticated channel to the ledger gateway. It is
// safe for concurrent use; the channel is shared across all calls.
type Client struct {
	cc       *grpc.ClientConn
	commands commandClient
	users    userClient

	appID         string
	submitTimeout time.Duration
	limiter       *rate.Limiter
	log           *slog.Logger
	metrics       *Metrics
}

// Dial connects to the ledger gateway and returns a Client.
func Dial(cfg Config) (*Client, error) {
	if cfg.Target == "" {
		return nil, newError(KindTransport, "ledger target is required", false)
	}
	if cfg.ApplicationID == "" {
		return nil, newError(KindRejected, "application id is required", false)
	}
	if cfg.Tokens == nil {
		return nil, newError(KindUnauthenticated, "token source is required", false)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(bearerInterceptor(cfg.Tokens)),
	}
	if cfg.Dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(cfg.Dialer))
	}

	ctx := context.Background()
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	cc, err := grpc.DialContext(ctx, cfg.Target, dialOpts...)
	if err != nil {
		return nil, wrapErr(KindTransport, "dialing ledger gateway", false, err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("connected to ledger", "target", cfg.Target, "applicationId", cfg.ApplicationID)

	timeout := cfg.SubmitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.SubmitsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitsPerSecond), 1)
	}
	return &Client{
		cc:            cc,
		commands:      newCommandClient(cc),
		users:         newUserClient(cc),
		appID:         cfg.ApplicationID,
		submitTimeout: timeout,
		limiter:       limiter,
		log:           log,
		metrics:       cfg.Metrics,
	}, nil
}

// Close tears down the channel.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// bearerInterceptor attaches the bearer token to every outbound call. A
// token failure aborts the call without retry.
func bearerInterceptor(src tokens.Source) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		tok, err := src.Token(ctx)
		if err != nil {
			return wrapErr(KindUnauthenticated, "obtaining bearer token", false, err)
		}
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *Client) batch(party, commandID string, cmds []Command, disclosed []DisclosedContract) *SubmitRequest {
	return &SubmitRequest{
		ApplicationID: c.appID,
		CommandID:     commandID,
		ActAs:         []string{party},
		ReadAs:        []string{party},
		Commands:      cmds,
		Disclosed:     disclosed,
	}
}

func (c *Client) waitSubmitSlot(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return mapRPC(err, false)
	}
	return nil
}

// SubmitCommands submits a batch fire-and-forget: the call returns once
// the ledger accepts the batch for processing, not once it commits.
func (c *Client) SubmitCommands(ctx context.Context, party string, cmds []Command, commandID string, disclosed []DisclosedContract) (err error) {
	log := c.log.With("party", party, "commandId", commandID, "commands", len(cmds))
	defer func() {
		c.metrics.observe("submit", err)
		if err != nil {
			log.Error("failed to submit commands", "err", err)
		} else {
			log.Info("submitted commands")
		}
	}()

	if err = c.waitSubmitSlot(ctx); err != nil {
		return err
	}
	env, err := EncodeSubmitRequest(c.batch(party, commandID, cmds, disclosed))
	if err != nil {
		return err
	}
	if _, err = c.commands.Submit(ctx, env); err != nil {
		err = mapRPC(err, false)
		return err
	}
	return nil
}

// SubmitAndWait submits a batch and blocks until the ledger reports the
// transaction committed or rejected, or the configured deadline expires.
func (c *Client) SubmitAndWait(ctx context.Context, party string, cmds []Command, commandID string, disclosed []DisclosedContract) (tree *TransactionTree, err error) {
	log := c.log.With("party", party, "commandId", commandID, "commands", len(cmds))
	defer func() {
		c.metrics.observe("submit_and_wait", err)
		if err != nil {
			log.Error("failed to submit and wait", "err", err)
		} else {
			log.Info("transaction committed", "offset", tree.Offset, "workflowId", tree.WorkflowID)
		}
	}()

	if err = c.waitSubmitSlot(ctx); err != nil {
		return nil, err
	}
	env, err := EncodeSubmitRequest(c.batch(party, commandID, cmds, disclosed))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	resp, err := c.commands.SubmitAndWaitForTransactionTree(ctx, env)
	if err != nil {
		err = mapRPC(err, true)
		return nil, err
	}
	tree, err = DecodeTransactionTree(resp)
	if err != nil {
		return nil, err
	}
	return tree, nil
}

// Create encodes entity through the codec registry and submits a single
// create command, fire-and-forget.
func (c *Client) Create(ctx context.Context, party string, templateID wire.Identifier, entity any, commandID string) error {
	payload, err := wire.EncodeTemplate(templateID, entity)
	if err != nil {
		return err
	}
	cmd := CreateCommand{TemplateID: templateID, Arguments: payload}
	return c.SubmitCommands(ctx, party, []Command{cmd}, commandID, nil)
}

// ExerciseAndGetResult encodes the choice argument, submits a single
// exercise command, waits for the transaction, and decodes the root
// event's exercise result with the choice's result codec.
func (c *Client) ExerciseAndGetResult(ctx context.Context, party, contractID string, choice Choice, arg any, commandID string, disclosed []DisclosedContract) (result any, err error) {
	log := c.log.With(
		"party", party,
		"commandId", commandID,
		"contractId", contractID,
		"choice", choice.Name,
		"templateId", choice.TemplateID.String(),
	)
	defer func() {
		if err != nil {
			log.Error("failed to exercise choice", "err", err)
		} else {
			log.Info("exercised choice")
		}
	}()

	payload, err := wire.EncodeChoiceArgument(choice.TemplateID, choice.Name, arg)
	if err != nil {
		return nil, err
	}
	cmd := ExerciseCommand{
		TemplateID: choice.TemplateID,
		ContractID: contractID,
		Choice:     choice.Name,
		Argument:   payload,
	}
	tree, err := c.SubmitAndWait(ctx, party, []Command{cmd}, commandID, disclosed)
	if err != nil {
		return nil, err
	}
	root, err := tree.RootEvent()
	if err != nil {
		return nil, err
	}
	return wire.DecodeChoiceResult(choice.TemplateID, choice.Name, root.ExerciseResult)
}
