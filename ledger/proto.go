package ledger

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/wire"
)

// Envelope codec for the command service messages. The encoding is
// symmetric so the in-process stub ledger can parse exactly what the
// client emits.
//
// SubmitRequest:
//
//	{
//	  "applicationId": ..., "commandId": ..., "actAs": [...], "readAs": [...],
//	  "commands": [ {"create": {...}} | {"exercise": {...}} ],
//	  "disclosedContracts": [ {"templateId", "contractId", "createdEventBlob"} ]
//	}
//
// Transaction tree response:
//
//	{"transaction": {"offset", "workflowId", "rootEventIds", "eventsById"}}

// SubmitRequest is a full command batch as sent to the ledger.
type SubmitRequest struct {
	ApplicationID string
	CommandID     string
	ActAs         []string
	ReadAs        []string
	Commands      []Command
	Disclosed     []DisclosedContract
}

// EncodeSubmitRequest converts a batch to its wire envelope.
func EncodeSubmitRequest(req *SubmitRequest) (*structpb.Struct, error) {
	cmds := make([]*structpb.Value, 0, len(req.Commands))
	for _, c := range req.Commands {
		v, err := encodeCommand(c)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, v)
	}
	disclosed := make([]*structpb.Value, 0, len(req.Disclosed))
	for _, dc := range req.Disclosed {
		disclosed = append(disclosed, encodeDisclosed(dc))
	}
	env := wire.Record(
		wire.Field{Name: "applicationId", Value: wire.Text(req.ApplicationID)},
		wire.Field{Name: "commandId", Value: wire.Text(req.CommandID)},
		wire.Field{Name: "actAs", Value: wire.List(partyValues(req.ActAs)...)},
		wire.Field{Name: "readAs", Value: wire.List(partyValues(req.ReadAs)...)},
		wire.Field{Name: "commands", Value: wire.List(cmds...)},
		wire.Field{Name: "disclosedContracts", Value: wire.List(disclosed...)},
	)
	return env.GetStructValue(), nil
}

func partyValues(parties []string) []*structpb.Value {
	out := make([]*structpb.Value, 0, len(parties))
	for _, p := range parties {
		out = append(out, wire.Party(p))
	}
	return out
}

func encodeCommand(c Command) (*structpb.Value, error) {
	switch cmd := c.(type) {
	case CreateCommand:
		return wire.Record(wire.Field{Name: "create", Value: wire.Record(
			wire.Field{Name: "templateId", Value: wire.Text(cmd.TemplateID.String())},
			wire.Field{Name: "createArguments", Value: cmd.Arguments},
		)}), nil
	case ExerciseCommand:
		return wire.Record(wire.Field{Name: "exercise", Value: wire.Record(
			wire.Field{Name: "templateId", Value: wire.Text(cmd.TemplateID.String())},
			wire.Field{Name: "contractId", Value: wire.ContractID(cmd.ContractID)},
			wire.Field{Name: "choice", Value: wire.Text(cmd.Choice)},
			wire.Field{Name: "choiceArgument", Value: cmd.Argument},
		)}), nil
	default:
		return nil, newError(KindRejected, fmt.Sprintf("unsupported command type %T", c), false)
	}
}

func encodeDisclosed(dc DisclosedContract) *structpb.Value {
	return wire.Record(
		wire.Field{Name: "templateId", Value: wire.Text(dc.TemplateID.String())},
		wire.Field{Name: "contractId", Value: wire.ContractID(dc.ContractID)},
		wire.Field{Name: "createdEventBlob", Value: wire.Text(base64.StdEncoding.EncodeToString(dc.CreatedEventBlob))},
	)
}

// DecodeSubmitRequest parses a wire envelope back into a batch.
func DecodeSubmitRequest(env *structpb.Struct) (*SubmitRequest, error) {
	v := structpb.NewStructValue(env)
	req := &SubmitRequest{}
	var err error
	if req.ApplicationID, err = textField(v, "applicationId"); err != nil {
		return nil, err
	}
	if req.CommandID, err = textField(v, "commandId"); err != nil {
		return nil, err
	}
	if req.ActAs, err = partyField(v, "actAs"); err != nil {
		return nil, err
	}
	if req.ReadAs, err = partyField(v, "readAs"); err != nil {
		return nil, err
	}

	cmdsV, err := wire.GetField(v, "commands")
	if err != nil {
		return nil, err
	}
	cmds, err := wire.AsList(cmdsV)
	if err != nil {
		return nil, err
	}
	for _, cv := range cmds {
		cmd, err := decodeCommand(cv)
		if err != nil {
			return nil, err
		}
		req.Commands = append(req.Commands, cmd)
	}

	dcsV, err := wire.GetField(v, "disclosedContracts")
	if err != nil {
		return nil, err
	}
	dcs, err := wire.AsList(dcsV)
	if err != nil {
		return nil, err
	}
	for _, dv := range dcs {
		dc, err := decodeDisclosed(dv)
		if err != nil {
			return nil, err
		}
		req.Disclosed = append(req.Disclosed, dc)
	}
	return req, nil
}

func textField(v *structpb.Value, name string) (string, error) {
	f, err := wire.GetField(v, name)
	if err != nil {
		return "", err
	}
	return wire.AsText(f)
}

func partyField(v *structpb.Value, name string) ([]string, error) {
	f, err := wire.GetField(v, name)
	if err != nil {
		return nil, err
	}
	items, err := wire.AsList(f)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		p, err := wire.AsText(it)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func identifierField(v *structpb.Value, name string) (wire.Identifier, error) {
	s, err := textField(v, name)
	if err != nil {
		return wire.Identifier{}, err
	}
	return wire.ParseIdentifier(s)
}

func decodeCommand(v *structpb.Value) (Command, error) {
	fields, err := wire.RecordFields(v)
	if err != nil {
		return nil, err
	}
	if create, ok := fields["create"]; ok {
		id, err := identifierField(create, "templateId")
		if err != nil {
			return nil, err
		}
		args, err := wire.GetField(create, "createArguments")
		if err != nil {
			return nil, err
		}
		return CreateCommand{TemplateID: id, Arguments: args}, nil
	}
	if exercise, ok := fields["exercise"]; ok {
		id, err := identifierField(exercise, "templateId")
		if err != nil {
			return nil, err
		}
		cid, err := textField(exercise, "contractId")
		if err != nil {
			return nil, err
		}
		choice, err := textField(exercise, "choice")
		if err != nil {
			return nil, err
		}
		arg, err := wire.GetField(exercise, "choiceArgument")
		if err != nil {
			return nil, err
		}
		return ExerciseCommand{TemplateID: id, ContractID: cid, Choice: choice, Argument: arg}, nil
	}
	return nil, newError(KindRejected, "command is neither create nor exercise", false)
}

func decodeDisclosed(v *structpb.Value) (DisclosedContract, error) {
	id, err := identifierField(v, "templateId")
	if err != nil {
		return DisclosedContract{}, err
	}
	cid, err := textField(v, "contractId")
	if err != nil {
		return DisclosedContract{}, err
	}
	blobB64, err := textField(v, "createdEventBlob")
	if err != nil {
		return DisclosedContract{}, err
	}
	blob, err := base64.StdEncoding.DecodeString(blobB64)
	if err != nil {
		return DisclosedContract{}, wrapErr(KindRejected, "invalid createdEventBlob encoding", false, err)
	}
	return DisclosedContract{TemplateID: id, ContractID: cid, CreatedEventBlob: blob}, nil
}

// EncodeTransactionTree converts a tree to the wire response envelope.
func EncodeTransactionTree(tree *TransactionTree) (*structpb.Struct, error) {
	events := make([]wire.Field, 0, len(tree.EventsByID))
	for id, ev := range tree.EventsByID {
		v, err := encodeTreeEvent(ev)
		if err != nil {
			return nil, err
		}
		events = append(events, wire.Field{Name: id, Value: v})
	}
	roots := make([]*structpb.Value, 0, len(tree.RootEventIDs))
	for _, id := range tree.RootEventIDs {
		roots = append(roots, wire.Text(id))
	}
	env := wire.Record(wire.Field{Name: "transaction", Value: wire.Record(
		wire.Field{Name: "offset", Value: wire.Int64(tree.Offset)},
		wire.Field{Name: "workflowId", Value: wire.Text(tree.WorkflowID)},
		wire.Field{Name: "rootEventIds", Value: wire.List(roots...)},
		wire.Field{Name: "eventsById", Value: wire.Record(events...)},
	)})
	return env.GetStructValue(), nil
}

func encodeTreeEvent(ev TreeEvent) (*structpb.Value, error) {
	switch ev.Kind {
	case EventCreated:
		return wire.Record(wire.Field{Name: "created", Value: wire.Record(
			wire.Field{Name: "eventId", Value: wire.Text(ev.EventID)},
			wire.Field{Name: "templateId", Value: wire.Text(ev.TemplateID.String())},
			wire.Field{Name: "contractId", Value: wire.ContractID(ev.ContractID)},
			wire.Field{Name: "createArguments", Value: ev.CreateArguments},
		)}), nil
	case EventExercised:
		return wire.Record(wire.Field{Name: "exercised", Value: wire.Record(
			wire.Field{Name: "eventId", Value: wire.Text(ev.EventID)},
			wire.Field{Name: "templateId", Value: wire.Text(ev.TemplateID.String())},
			wire.Field{Name: "contractId", Value: wire.ContractID(ev.ContractID)},
			wire.Field{Name: "choice", Value: wire.Text(ev.Choice)},
			wire.Field{Name: "choiceArgument", Value: ev.ChoiceArgument},
			wire.Field{Name: "exerciseResult", Value: ev.ExerciseResult},
		)}), nil
	default:
		return nil, newError(KindRejected, fmt.Sprintf("unknown tree event kind %q", ev.Kind), false)
	}
}

// DecodeTransactionTree parses a submit-and-wait response envelope.
func DecodeTransactionTree(env *structpb.Struct) (*TransactionTree, error) {
	v := structpb.NewStructValue(env)
	tx, err := wire.GetField(v, "transaction")
	if err != nil {
		return nil, err
	}

	tree := &TransactionTree{EventsByID: map[string]TreeEvent{}}
	offsetV, err := wire.GetField(tx, "offset")
	if err != nil {
		return nil, err
	}
	if tree.Offset, err = wire.AsInt64(offsetV); err != nil {
		return nil, err
	}
	if tree.WorkflowID, err = textField(tx, "workflowId"); err != nil {
		return nil, err
	}

	rootsV, err := wire.GetField(tx, "rootEventIds")
	if err != nil {
		return nil, err
	}
	roots, err := wire.AsList(rootsV)
	if err != nil {
		return nil, err
	}
	for _, r := range roots {
		id, err := wire.AsText(r)
		if err != nil {
			return nil, err
		}
		tree.RootEventIDs = append(tree.RootEventIDs, id)
	}

	eventsV, err := wire.GetField(tx, "eventsById")
	if err != nil {
		return nil, err
	}
	events, err := wire.RecordFields(eventsV)
	if err != nil {
		return nil, err
	}
	for id, ev := range events {
		decoded, err := decodeTreeEvent(ev)
		if err != nil {
			return nil, err
		}
		tree.EventsByID[id] = decoded
	}
	return tree, nil
}

func decodeTreeEvent(v *structpb.Value) (TreeEvent, error) {
	fields, err := wire.RecordFields(v)
	if err != nil {
		return TreeEvent{}, err
	}
	if created, ok := fields["created"]; ok {
		ev := TreeEvent{Kind: EventCreated}
		if ev.EventID, err = textField(created, "eventId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.TemplateID, err = identifierField(created, "templateId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.ContractID, err = textField(created, "contractId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.CreateArguments, err = wire.GetField(created, "createArguments"); err != nil {
			return TreeEvent{}, err
		}
		return ev, nil
	}
	if exercised, ok := fields["exercised"]; ok {
		ev := TreeEvent{Kind: EventExercised}
		if ev.EventID, err = textField(exercised, "eventId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.TemplateID, err = identifierField(exercised, "templateId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.ContractID, err = textField(exercised, "contractId"); err != nil {
			return TreeEvent{}, err
		}
		if ev.Choice, err = textField(exercised, "choice"); err != nil {
			return TreeEvent{}, err
		}
		if ev.ChoiceArgument, err = wire.GetField(exercised, "choiceArgument"); err != nil {
			return TreeEvent{}, err
		}
		if ev.ExerciseResult, err = wire.GetField(exercised, "exerciseResult"); err != nil {
			return TreeEvent{}, err
		}
		return ev, nil
	}
	return TreeEvent{}, newError(KindRejected, "tree event is neither created nor exercised", false)
}
