// Package ledgertest provides an in-process stub ledger for tests: it
// implements the command and user management services over bufconn,
// enforces command-id deduplication, and lets tests script transaction
// outcomes per submission.
package ledgertest

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/ledger"
)

// Outcome scripts the ledger's response to one submit-and-wait batch.
// Exactly one of Tree or Err is consulted; a nil Outcome commits a
// minimal synthetic transaction.
type Outcome func(req *ledger.SubmitRequest) (*ledger.TransactionTree, error)

// Server is the stub ledger. Zero value is not usable; call New.
type Server struct {
	ledger.UnimplementedCommandServer
	ledger.UnimplementedUserServer

	// Outcome scripts submit-and-wait results. May be swapped between
	// calls; guarded by mu.
	mu      sync.Mutex
	outcome Outcome

	// Delay postpones each submit-and-wait response, for deadline tests.
	delay time.Duration

	seq        int64
	committed  map[string]*ledger.TransactionTree
	submitted  []*ledger.SubmitRequest
	userRights map[string][]ledger.Right
	users      map[string]ledger.User
	tokensSeen []string
}

// New builds an empty stub ledger.
func New() *Server {
	return &Server{
		committed:  map[string]*ledger.TransactionTree{},
		userRights: map[string][]ledger.Right{},
		users:      map[string]ledger.User{},
	}
}

// SetUser seeds a user record for GetUser and ListUsers.
func (s *Server) SetUser(u ledger.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// SetOutcome scripts the result of subsequent submit-and-wait calls.
func (s *Server) SetOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
}

// SetDelay postpones subsequent submit-and-wait responses.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Submissions returns every batch accepted so far, in order.
func (s *Server) Submissions() []*ledger.SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ledger.SubmitRequest, len(s.submitted))
	copy(out, s.submitted)
	return out
}

// BearerTokens returns the bearer tokens observed on accepted calls.
func (s *Server) BearerTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tokensSeen))
	copy(out, s.tokensSeen)
	return out
}

// UserRights returns the rights granted to userID so far.
func (s *Server) UserRights(userID string) []ledger.Right {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Right(nil), s.userRights[userID]...)
}

func (s *Server) recordToken(ctx context.Context) error {
	md, _ := metadata.FromIncomingContext(ctx)
	auth := md.Get("authorization")
	if len(auth) == 0 {
		return status.Error(codes.Unauthenticated, "missing bearer token")
	}
	s.tokensSeen = append(s.tokensSeen, auth[0])
	return nil
}

func dedupKey(req *ledger.SubmitRequest) string {
	party := ""
	if len(req.ActAs) > 0 {
		party = req.ActAs[0]
	}
	return party + "|" + req.CommandID
}

// Submit accepts a batch without waiting for commitment.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ledger.DecodeSubmitRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordToken(ctx); err != nil {
		return nil, err
	}
	s.submitted = append(s.submitted, req)
	return structpb.NewStruct(nil)
}

// SubmitAndWaitForTransactionTree commits a batch and returns its tree.
// A repeated (party, commandId) pair returns the original tree without
// re-executing, matching the ledger's deduplication guarantee.
func (s *Server) SubmitAndWaitForTransactionTree(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := ledger.DecodeSubmitRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.mu.Lock()
	outcome := s.outcome
	delay := s.delay
	if err := s.recordToken(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if tree, dup := s.committed[dedupKey(req)]; dup {
		s.mu.Unlock()
		return ledger.EncodeTransactionTree(tree)
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, status.FromContextError(ctx.Err()).Err()
		}
	}

	var tree *ledger.TransactionTree
	if outcome != nil {
		tree, err = outcome(req)
		if err != nil {
			return nil, err
		}
	} else {
		tree = s.syntheticTree(req)
	}

	s.mu.Lock()
	s.submitted = append(s.submitted, req)
	s.committed[dedupKey(req)] = tree
	s.mu.Unlock()
	return ledger.EncodeTransactionTree(tree)
}

// syntheticTree commits a minimal tree: one root event per command.
func (s *Server) syntheticTree(req *ledger.SubmitRequest) *ledger.TransactionTree {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()

	tree := &ledger.TransactionTree{
		Offset:     n,
		WorkflowID: fmt.Sprintf("wf-%d", n),
		EventsByID: map[string]ledger.TreeEvent{},
	}
	for i, cmd := range req.Commands {
		id := fmt.Sprintf("#%d:%d", n, i)
		tree.RootEventIDs = append(tree.RootEventIDs, id)
		switch c := cmd.(type) {
		case ledger.CreateCommand:
			tree.EventsByID[id] = ledger.TreeEvent{
				Kind:            ledger.EventCreated,
				EventID:         id,
				TemplateID:      c.TemplateID,
				ContractID:      fmt.Sprintf("%s#%d", c.TemplateID.EntityName, n),
				CreateArguments: c.Arguments,
			}
		case ledger.ExerciseCommand:
			tree.EventsByID[id] = ledger.TreeEvent{
				Kind:           ledger.EventExercised,
				EventID:        id,
				TemplateID:     c.TemplateID,
				ContractID:     c.ContractID,
				Choice:         c.Choice,
				ChoiceArgument: c.Argument,
				ExerciseResult: c.Argument,
			}
		}
	}
	return tree
}

// GrantUserRights records granted rights for the user.
func (s *Server) GrantUserRights(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordToken(ctx); err != nil {
		return nil, err
	}

	userID, rights, err := parseGrantRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	s.userRights[userID] = append(s.userRights[userID], rights...)
	return structpb.NewStruct(nil)
}

// ListUserRights returns the rights recorded for the user.
func (s *Server) ListUserRights(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordToken(ctx); err != nil {
		return nil, err
	}
	userID := in.GetFields()["userId"].GetStringValue()
	return encodeRightsResponse(s.userRights[userID])
}

// GetUser returns a seeded user, or NotFound.
func (s *Server) GetUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordToken(ctx); err != nil {
		return nil, err
	}
	userID := in.GetFields()["userId"].GetStringValue()
	u, ok := s.users[userID]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "user %q not found", userID)
	}
	return encodeUserResponse(u)
}

// ListUsers returns every seeded user, ordered by id.
func (s *Server) ListUsers(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.recordToken(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	users := make([]ledger.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, s.users[id])
	}
	return encodeUsersResponse(users)
}

// Start serves the stub over bufconn and returns a dialer for
// ledger.Config. The server stops when the test ends.
func Start(t *testing.T, s *Server) func(ctx context.Context, target string) (net.Conn, error) {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	ledger.RegisterCommandServer(srv, s)
	ledger.RegisterUserServer(srv, s)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)
	return func(ctx context.Context, target string) (net.Conn, error) {
		return lis.Dial()
	}
}
