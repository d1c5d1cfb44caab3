package amm

import (
	"github.com/ethereum/go-ethereum/common"

	"launchpool/internal/dex"
	"launchpool/internal/ledger"
	"launchpool/internal/types"
)

// Ownable is single-owner access control. Callers hold the ledger lock.
type Ownable struct {
	emitter common.Address
	owner   common.Address
}

// NewOwnable sets the initial owner of the component at emitter.
func NewOwnable(emitter, owner common.Address) Ownable {
	return Ownable{emitter: emitter, owner: owner}
}

// OwnerUnsafe returns the owner without taking the ledger lock.
func (o *Ownable) OwnerUnsafe() common.Address {
	return o.owner
}

// CheckOwner rejects any caller other than the current owner. A renounced
// component rejects everyone.
func (o *Ownable) CheckOwner(caller common.Address) error {
	if o.owner == (common.Address{}) || caller != o.owner {
		return types.ErrNotOwner.Wrapf("caller %s", caller.Hex())
	}
	return nil
}

// TransferOwnership hands control to newOwner.
func (o *Ownable) TransferOwnership(tx *ledger.Tx, caller, newOwner common.Address) error {
	if err := o.CheckOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return types.ErrZeroAddress.Wrap("new owner")
	}
	return o.setOwner(tx, newOwner)
}

// RenounceOwnership leaves the component without an owner, permanently.
func (o *Ownable) RenounceOwnership(tx *ledger.Tx, caller common.Address) error {
	if err := o.CheckOwner(caller); err != nil {
		return err
	}
	return o.setOwner(tx, common.Address{})
}

func (o *Ownable) setOwner(tx *ledger.Tx, owner common.Address) error {
	previous := o.owner
	if err := ledger.Set(tx, &o.owner, owner); err != nil {
		return err
	}
	return Emit(tx, o.emitter, dex.EventOwnershipTransferred, previous, owner)
}

// Emit encodes and buffers an engine event on tx.
func Emit(tx *ledger.Tx, emitter common.Address, name string, values ...interface{}) error {
	topics, data, err := dex.EncodeEvent(name, values...)
	if err != nil {
		return err
	}
	tx.Emit(emitter, topics, data)
	return nil
}
