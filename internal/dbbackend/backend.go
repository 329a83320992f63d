// Package dbbackend defines the contract the Database Server persists
// through: three interchangeable realisations (plain-text, packed-binary,
// relational) of {load, save, exists, nextDoId, accountDirectory}
// (spec.md §4.4).
package dbbackend

import (
	"context"
	"errors"

	"github.com/toontownretro/otp-server/internal/model"
)

// ErrNotFound is returned by Load/Exists-adjacent calls when a doId has
// no stored object.
var ErrNotFound = errors.New("dbbackend: object not found")

// ErrUnsupportedVersion is returned by Load when the stored (maj,min,sub)
// triple falls outside [model.MinSupportedVersion, model.CurrentVersion].
// Callers MUST treat this as fatal for the object being loaded rather
// than materialising a partially-read object (spec.md §4.4 "Version gate").
var ErrUnsupportedVersion = errors.New("dbbackend: unsupported schema version")

// Backend is the persistence contract shared by all three realisations.
type Backend interface {
	// Load fetches a persisted object by doId. ok is false (err nil) if
	// no object is stored under doId.
	Load(ctx context.Context, doID model.DoID) (*model.DatabaseObject, bool, error)

	// Save persists obj, overwriting any previous revision. Implementations
	// MUST treat this as atomic with respect to concurrent Load/Save calls
	// on the same doId (spec.md §5 "read-your-writes for a single object").
	Save(ctx context.Context, obj *model.DatabaseObject) error

	// Exists reports whether doID has a stored object, without loading it.
	Exists(ctx context.Context, doID model.DoID) (bool, error)

	// NextDoID computes, on demand, the next id this backend would hand
	// to a freshly created object. Never cached (spec.md §4.4 "ID
	// allocation"); collision-safety at creation time comes from the
	// backend's own exclusive save step, not from this call.
	NextDoID(ctx context.Context) (model.DoID, error)

	// AccountDirectory returns the account-name -> doId index this
	// backend maintains alongside per-object storage.
	AccountDirectory() AccountDirectory
}

// AccountDirectory is the account-name -> doId index described in
// original_source/client_agent.py (a file-per-account directory) and
// spec.md §6 (the SQL `accounts` table with the same semantics).
type AccountDirectory interface {
	Lookup(ctx context.Context, accountName string) (model.DoID, bool, error)
	Bind(ctx context.Context, accountName string, doID model.DoID) error
}
