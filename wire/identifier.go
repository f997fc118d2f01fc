// Package wire converts typed domain entities to and from the ledger's
// generic wire value representation.
//
// The wire representation is the Daml JSON-style encoding carried in
// protobuf Struct/Value messages: records are objects, variants are
// {"tag": ..., "value": ...} objects, int64 and decimal values are
// strings, timestamps are RFC 3339 strings.
//
// The codec is a pure mapping with no I/O. The registry is populated in
// init() by domain packages and is safe for concurrent readers.
package wire

import (
	"fmt"
	"strings"
)

// Identifier is the fully qualified name of a template or choice owner:
// package id, module name, entity name.
type Identifier struct {
	PackageID  string
	ModuleName string
	EntityName string
}

// ParseIdentifier parses "packageId:moduleName:entityName".
//
// Entity names may themselves contain colons; everything after the second
// colon belongs to the entity name.
func ParseIdentifier(s string) (Identifier, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Identifier{}, newError(KindSchemaMismatch, fmt.Sprintf("invalid template identifier %q", s))
	}
	return Identifier{PackageID: parts[0], ModuleName: parts[1], EntityName: parts[2]}, nil
}

func (id Identifier) String() string {
	return id.PackageID + ":" + id.ModuleName + ":" + id.EntityName
}

// QualifiedName returns the module-qualified entity name without the
// package id, as used by tabular query stores.
func (id Identifier) QualifiedName() string {
	return id.ModuleName + ":" + id.EntityName
}

// IsZero reports whether the identifier is entirely unset.
func (id Identifier) IsZero() bool {
	return id == Identifier{}
}
