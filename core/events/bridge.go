package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"evmbridge/core/types"
	"evmbridge/crypto"
)

const (
	// TypeTransactionReplayed is emitted after a replay settles.
	TypeTransactionReplayed = "bridge.transactionReplayed"
	// TypeAuthoritySet is emitted when governance rotates the replay authority.
	TypeAuthoritySet = "bridge.authoritySet"
	// TypeEvmAddress reports the EVM address bound to a native account.
	TypeEvmAddress = "bridge.evmAddress"
	// TypeAccountResolved reports the native account bound to an EVM address.
	TypeAccountResolved = "bridge.accountResolved"
	// TypeCollectionCreated is emitted the first time a contract is migrated.
	TypeCollectionCreated = "bridge.collectionCreated"
	// TypeItemMinted is emitted when a migrated item gets its first owner.
	TypeItemMinted = "bridge.itemMinted"
	// TypeItemTransferred is emitted when reconciliation moves an item.
	TypeItemTransferred = "bridge.itemTransferred"
	// TypeScanCompleted summarises a storage scan.
	TypeScanCompleted = "bridge.scanCompleted"
)

type TransactionReplayed struct {
	ExecutionIndex uint64
	From           common.Address
	GasUsed        uint64
	Prefund        *uint256.Int
	Withdrawn      *uint256.Int
}

func (TransactionReplayed) EventType() string { return TypeTransactionReplayed }

func (e TransactionReplayed) Event() *types.Event {
	attrs := map[string]string{
		"executionIndex": strconv.FormatUint(e.ExecutionIndex, 10),
		"from":           e.From.Hex(),
		"gasUsed":        strconv.FormatUint(e.GasUsed, 10),
		"prefund":        formatAmount(e.Prefund),
		"withdrawn":      formatAmount(e.Withdrawn),
	}
	return &types.Event{Type: TypeTransactionReplayed, Attributes: attrs}
}

type AuthoritySet struct {
	Authority crypto.AccountID
}

func (AuthoritySet) EventType() string { return TypeAuthoritySet }

func (e AuthoritySet) Event() *types.Event {
	return &types.Event{Type: TypeAuthoritySet, Attributes: map[string]string{
		"authority": e.Authority.String(),
	}}
}

type EvmAddress struct {
	Account crypto.AccountID
	Address common.Address
}

func (EvmAddress) EventType() string { return TypeEvmAddress }

func (e EvmAddress) Event() *types.Event {
	return &types.Event{Type: TypeEvmAddress, Attributes: map[string]string{
		"account": e.Account.String(),
		"address": e.Address.Hex(),
	}}
}

type AccountResolved struct {
	Address common.Address
	Account crypto.AccountID
}

func (AccountResolved) EventType() string { return TypeAccountResolved }

func (e AccountResolved) Event() *types.Event {
	return &types.Event{Type: TypeAccountResolved, Attributes: map[string]string{
		"address": e.Address.Hex(),
		"account": e.Account.String(),
	}}
}

type CollectionCreated struct {
	Collection [20]byte
	Admin      crypto.AccountID
	Deposit    *uint256.Int
}

func (CollectionCreated) EventType() string { return TypeCollectionCreated }

func (e CollectionCreated) Event() *types.Event {
	return &types.Event{Type: TypeCollectionCreated, Attributes: map[string]string{
		"collection": hexBytes(e.Collection[:]),
		"admin":      e.Admin.String(),
		"deposit":    formatAmount(e.Deposit),
	}}
}

type ItemMinted struct {
	Collection [20]byte
	Item       [32]byte
	Owner      crypto.AccountID
}

func (ItemMinted) EventType() string { return TypeItemMinted }

func (e ItemMinted) Event() *types.Event {
	return &types.Event{Type: TypeItemMinted, Attributes: map[string]string{
		"collection": hexBytes(e.Collection[:]),
		"item":       hexBytes(e.Item[:]),
		"owner":      e.Owner.String(),
	}}
}

type ItemTransferred struct {
	Collection [20]byte
	Item       [32]byte
	From       crypto.AccountID
	To         crypto.AccountID
}

func (ItemTransferred) EventType() string { return TypeItemTransferred }

func (e ItemTransferred) Event() *types.Event {
	return &types.Event{Type: TypeItemTransferred, Attributes: map[string]string{
		"collection": hexBytes(e.Collection[:]),
		"item":       hexBytes(e.Item[:]),
		"from":       e.From.String(),
		"to":         e.To.String(),
	}}
}

type ScanCompleted struct {
	Mode       string
	Collection [20]byte
	Pairs      uint64
	Reconciled uint64
	Complete   bool
	Next       common.Hash
}

func (ScanCompleted) EventType() string { return TypeScanCompleted }

func (e ScanCompleted) Event() *types.Event {
	attrs := map[string]string{
		"mode":       e.Mode,
		"collection": hexBytes(e.Collection[:]),
		"pairs":      strconv.FormatUint(e.Pairs, 10),
		"reconciled": strconv.FormatUint(e.Reconciled, 10),
		"complete":   strconv.FormatBool(e.Complete),
	}
	if !e.Complete {
		attrs["next"] = e.Next.Hex()
	}
	return &types.Event{Type: TypeScanCompleted, Attributes: attrs}
}
