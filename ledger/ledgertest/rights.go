package ledgertest

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/ledger"
	"licenseworks.dev/backend/wire"
)

func parseGrantRequest(in *structpb.Struct) (string, []ledger.Right, error) {
	v := structpb.NewStructValue(in)
	userIDV, err := wire.GetField(v, "userId")
	if err != nil {
		return "", nil, err
	}
	userID, err := wire.AsText(userIDV)
	if err != nil {
		return "", nil, err
	}
	rightsV, err := wire.GetField(v, "rights")
	if err != nil {
		return "", nil, err
	}
	items, err := wire.AsList(rightsV)
	if err != nil {
		return "", nil, err
	}
	var rights []ledger.Right
	for _, it := range items {
		fields, err := wire.RecordFields(it)
		if err != nil {
			return "", nil, err
		}
		switch {
		case fields["participantAdmin"] != nil:
			rights = append(rights, ledger.Right{Kind: ledger.RightParticipantAdmin})
		case fields["canActAs"] != nil:
			p, err := partyOf(fields["canActAs"])
			if err != nil {
				return "", nil, err
			}
			rights = append(rights, ledger.Right{Kind: ledger.RightCanActAs, Party: p})
		case fields["canReadAs"] != nil:
			p, err := partyOf(fields["canReadAs"])
			if err != nil {
				return "", nil, err
			}
			rights = append(rights, ledger.Right{Kind: ledger.RightCanReadAs, Party: p})
		default:
			return "", nil, fmt.Errorf("unknown right shape")
		}
	}
	return userID, rights, nil
}

func partyOf(v *structpb.Value) (string, error) {
	p, err := wire.GetField(v, "party")
	if err != nil {
		return "", err
	}
	return wire.AsText(p)
}

// encodeUserValue leaves primaryParty out entirely when unset, as a
// real ledger does for users without one.
func encodeUserValue(u ledger.User) *structpb.Value {
	fields := []wire.Field{{Name: "id", Value: wire.Text(u.ID)}}
	if u.PrimaryParty != "" {
		fields = append(fields, wire.Field{Name: "primaryParty", Value: wire.Party(u.PrimaryParty)})
	}
	return wire.Record(fields...)
}

func encodeUserResponse(u ledger.User) (*structpb.Struct, error) {
	return wire.Record(wire.Field{Name: "user", Value: encodeUserValue(u)}).GetStructValue(), nil
}

func encodeUsersResponse(users []ledger.User) (*structpb.Struct, error) {
	items := make([]*structpb.Value, 0, len(users))
	for _, u := range users {
		items = append(items, encodeUserValue(u))
	}
	return wire.Record(wire.Field{Name: "users", Value: wire.List(items...)}).GetStructValue(), nil
}

func encodeRightsResponse(rights []ledger.Right) (*structpb.Struct, error) {
	items := make([]*structpb.Value, 0, len(rights))
	for _, r := range rights {
		switch r.Kind {
		case ledger.RightParticipantAdmin:
			items = append(items, wire.Record(wire.Field{Name: "participantAdmin", Value: wire.Record()}))
		case ledger.RightCanActAs:
			items = append(items, wire.Record(wire.Field{Name: "canActAs", Value: wire.Record(
				wire.Field{Name: "party", Value: wire.Party(r.Party)},
			)}))
		case ledger.RightCanReadAs:
			items = append(items, wire.Record(wire.Field{Name: "canReadAs", Value: wire.Record(
				wire.Field{Name: "party", Value: wire.Party(r.Party)},
			)}))
		}
	}
	return wire.Record(wire.Field{Name: "rights", Value: wire.List(items...)}).GetStructValue(), nil
}
