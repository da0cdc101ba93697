package replay

import (
	"errors"
	"fmt"

	bridgeerrors "evmbridge/core/errors"
	"evmbridge/core/types"
	"evmbridge/crypto"
)

var errNilState = errors.New("replay: state not configured")

var authorityKey = []byte("replay/authority")

// governanceState abstracts the state manager methods used to persist the
// replay authority.
type governanceState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Governance decides which origins may replay transactions and rotate the
// replay authority. The engine consults it on every call instead of reading
// a global flag.
type Governance struct {
	state      governanceState
	allowUnset bool
}

// NewGovernance binds the capability checks to persisted state.
func NewGovernance(store governanceState) *Governance {
	return &Governance{state: store}
}

// SetState configures the state backend.
func (g *Governance) SetState(store governanceState) {
	g.state = store
}

// SetAllowUnsetAuthority lets any signed origin replay while no authority has
// been configured.
func (g *Governance) SetAllowUnsetAuthority(allow bool) {
	g.allowUnset = allow
}

// Authority returns the configured replay authority.
func (g *Governance) Authority() (crypto.AccountID, bool, error) {
	if g.state == nil {
		return crypto.AccountID{}, false, errNilState
	}
	var id crypto.AccountID
	ok, err := g.state.KVGet(authorityKey, &id)
	if err != nil || !ok {
		return crypto.AccountID{}, false, err
	}
	return id, true, nil
}

// AuthorizeReplay admits root and the configured authority.
func (g *Governance) AuthorizeReplay(origin types.Origin) error {
	if origin.IsRoot() {
		return nil
	}
	signer, _ := origin.Signer()
	authority, ok, err := g.Authority()
	if err != nil {
		return err
	}
	if !ok {
		if g.allowUnset {
			return nil
		}
		return fmt.Errorf("%w: no replay authority configured", bridgeerrors.ErrUnauthorized)
	}
	if signer != authority {
		return fmt.Errorf("%w: %s is not the replay authority", bridgeerrors.ErrUnauthorized, signer)
	}
	return nil
}

// AuthorizeSetAuthority admits root only.
func (g *Governance) AuthorizeSetAuthority(origin types.Origin) error {
	if !origin.IsRoot() {
		return fmt.Errorf("%w: set authority requires root", bridgeerrors.ErrUnauthorized)
	}
	return nil
}

// SetAuthority stores a new authority after checking origin.
func (g *Governance) SetAuthority(origin types.Origin, authority crypto.AccountID) error {
	if err := g.AuthorizeSetAuthority(origin); err != nil {
		return err
	}
	if g.state == nil {
		return errNilState
	}
	return g.state.KVPut(authorityKey, authority)
}

// Bootstrap installs authority when none is stored yet. It reports whether
// the value was written.
func (g *Governance) Bootstrap(authority crypto.AccountID) (bool, error) {
	if authority.IsZero() {
		return false, nil
	}
	_, ok, err := g.Authority()
	if err != nil || ok {
		return false, err
	}
	return true, g.state.KVPut(authorityKey, authority)
}
