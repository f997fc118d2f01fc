// Package ledger submits commands to, and decodes transactions from, a
// Daml-style ledger over its command gRPC services.
//
// The client owns one authenticated channel. Commands are built per call
// and submitted exactly once; retries are the caller's responsibility,
// keyed by the same command id (the ledger deduplicates per party and
// command id).
package ledger

import (
	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/wire"
)

// Value is the ledger's generic wire value; see package wire for the
// shape conventions and typed accessors.
type Value = structpb.Value

// Command is one element of a command batch: a tagged variant of create
// and exercise. Payloads are already wire-encoded by the codec.
type Command interface {
	isCommand()
}

// CreateCommand instantiates a template.
type CreateCommand struct {
	TemplateID wire.Identifier
	Arguments  *Value
}

func (CreateCommand) isCommand() {}

// ExerciseCommand exercises a choice on an existing contract.
type ExerciseCommand struct {
	TemplateID wire.Identifier
	ContractID string
	Choice     string
	Argument   *Value
}

func (ExerciseCommand) isCommand() {}

// DisclosedContract is an externally-attested contract attached to a
// submission so the ledger can validate a command referencing a contract
// it cannot look up itself. The blob is copied verbatim from a prior
// read and never re-derived.
type DisclosedContract struct {
	TemplateID       wire.Identifier
	ContractID       string
	CreatedEventBlob []byte
}

// TreeEventKind discriminates transaction tree events.
type TreeEventKind string

const (
	EventCreated   TreeEventKind = "created"
	EventExercised TreeEventKind = "exercised"
)

// TreeEvent is one event of a committed transaction tree.
type TreeEvent struct {
	Kind       TreeEventKind
	EventID    string
	TemplateID wire.Identifier
	ContractID string

	// Created events.
	CreateArguments *Value

	// Exercised events.
	Choice         string
	ChoiceArgument *Value
	ExerciseResult *Value
}

// TransactionTree is the decoded outcome of a submit-and-wait call.
type TransactionTree struct {
	Offset       int64
	WorkflowID   string
	RootEventIDs []string
	EventsByID   map[string]TreeEvent
}

// RootEvent returns the first root event of the tree.
//
// A well-formed ledger always reports at least one root event for a
// committed transaction; its absence is a protocol invariant violation.
func (t *TransactionTree) RootEvent() (TreeEvent, error) {
	if t == nil || len(t.RootEventIDs) == 0 {
		return TreeEvent{}, newError(KindNoRootEvent, "transaction has no root events", false)
	}
	ev, ok := t.EventsByID[t.RootEventIDs[0]]
	if !ok {
		return TreeEvent{}, newError(KindNoRootEvent, "root event id missing from event map", false)
	}
	return ev, nil
}
