package types

import "evmbridge/crypto"

// Origin identifies who dispatched a call into the runtime. A root origin
// carries governance privileges; a signed origin is an ordinary account.
type Origin struct {
	root    bool
	account crypto.AccountID
}

// RootOrigin returns the privileged origin.
func RootOrigin() Origin {
	return Origin{root: true}
}

// SignedOrigin returns an origin acting on behalf of account.
func SignedOrigin(account crypto.AccountID) Origin {
	return Origin{account: account}
}

// IsRoot reports whether the origin carries root privileges.
func (o Origin) IsRoot() bool {
	return o.root
}

// Signer returns the account behind a signed origin. ok is false for root.
func (o Origin) Signer() (crypto.AccountID, bool) {
	if o.root {
		return crypto.AccountID{}, false
	}
	return o.account, true
}

func (o Origin) String() string {
	if o.root {
		return "root"
	}
	return o.account.String()
}
