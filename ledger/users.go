package ledger

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"

	"licenseworks.dev/backend/wire"
)

// User is a ledger user record.
type User struct {
	ID           string
	PrimaryParty string
}

// RightKind discriminates user rights.
type RightKind string

const (
	RightCanActAs         RightKind = "CanActAs"
	RightCanReadAs        RightKind = "CanReadAs"
	RightParticipantAdmin RightKind = "ParticipantAdmin"
)

// Right is one granted user right. Party is empty for ParticipantAdmin.
type Right struct {
	Kind  RightKind
	Party string
}

// GrantUserRights grants the application's own ledger user the right to
// act as actAs and read as readAs.
func (c *Client) GrantUserRights(ctx context.Context, actAs, readAs string) (err error) {
	log := c.log.With("userId", c.appID, "actAs", actAs, "readAs", readAs)
	defer func() {
		if err != nil {
			log.Error("failed to grant user rights", "err", err)
		} else {
			log.Info("granted user rights")
		}
	}()

	env := wire.Record(
		wire.Field{Name: "userId", Value: wire.Text(c.appID)},
		wire.Field{Name: "rights", Value: wire.List(
			encodeRight(Right{Kind: RightCanReadAs, Party: readAs}),
			encodeRight(Right{Kind: RightCanActAs, Party: actAs}),
		)},
	).GetStructValue()

	if _, err = c.users.GrantUserRights(ctx, env); err != nil {
		err = mapRPC(err, false)
		return err
	}
	return nil
}

// ListUserRights fetches the rights granted to a ledger user.
func (c *Client) ListUserRights(ctx context.Context, userID string) (rights []Right, err error) {
	log := c.log.With("userId", userID)
	defer func() {
		if err != nil {
			log.Error("failed to list user rights", "err", err)
		} else {
			log.Debug("listed user rights", "rights", len(rights))
		}
	}()

	env := wire.Record(wire.Field{Name: "userId", Value: wire.Text(userID)}).GetStructValue()
	resp, err := c.users.ListUserRights(ctx, env)
	if err != nil {
		err = mapRPC(err, false)
		return nil, err
	}
	rightsV, err := wire.GetField(structpb.NewStructValue(resp), "rights")
	if err != nil {
		return nil, err
	}
	items, err := wire.AsList(rightsV)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		r, err := decodeRight(it)
		if err != nil {
			return nil, err
		}
		rights = append(rights, r)
	}
	return rights, nil
}

// GetUser fetches one ledger user.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	env := wire.Record(wire.Field{Name: "userId", Value: wire.Text(userID)}).GetStructValue()
	resp, err := c.users.GetUser(ctx, env)
	if err != nil {
		return User{}, mapRPC(err, false)
	}
	userV, err := wire.GetField(structpb.NewStructValue(resp), "user")
	if err != nil {
		return User{}, err
	}
	return decodeUser(userV)
}

// ListUsers fetches all ledger users visible to the caller.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	env := wire.Record().GetStructValue()
	resp, err := c.users.ListUsers(ctx, env)
	if err != nil {
		return nil, mapRPC(err, false)
	}
	usersV, err := wire.GetField(structpb.NewStructValue(resp), "users")
	if err != nil {
		return nil, err
	}
	items, err := wire.AsList(usersV)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(items))
	for _, it := range items {
		u, err := decodeUser(it)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func encodeRight(r Right) *structpb.Value {
	switch r.Kind {
	case RightParticipantAdmin:
		return wire.Record(wire.Field{Name: "participantAdmin", Value: wire.Record()})
	case RightCanReadAs:
		return wire.Record(wire.Field{Name: "canReadAs", Value: wire.Record(
			wire.Field{Name: "party", Value: wire.Party(r.Party)},
		)})
	default:
		return wire.Record(wire.Field{Name: "canActAs", Value: wire.Record(
			wire.Field{Name: "party", Value: wire.Party(r.Party)},
		)})
	}
}

func decodeRight(v *structpb.Value) (Right, error) {
	fields, err := wire.RecordFields(v)
	if err != nil {
		return Right{}, err
	}
	if _, ok := fields["participantAdmin"]; ok {
		return Right{Kind: RightParticipantAdmin}, nil
	}
	if actAs, ok := fields["canActAs"]; ok {
		p, err := textField(actAs, "party")
		if err != nil {
			return Right{}, err
		}
		return Right{Kind: RightCanActAs, Party: p}, nil
	}
	if readAs, ok := fields["canReadAs"]; ok {
		p, err := textField(readAs, "party")
		if err != nil {
			return Right{}, err
		}
		return Right{Kind: RightCanReadAs, Party: p}, nil
	}
	return Right{}, newError(KindRejected, "unknown user right shape", false)
}

func decodeUser(v *structpb.Value) (User, error) {
	id, err := textField(v, "id")
	if err != nil {
		return User{}, err
	}
	u := User{ID: id}
	// primaryParty is optional; users without one are legal.
	fields, err := wire.RecordFields(v)
	if err != nil {
		return User{}, err
	}
	if pv, ok := fields["primaryParty"]; ok {
		if u.PrimaryParty, err = wire.AsText(pv); err != nil {
			return User{}, err
		}
	}
	return u, nil
}
