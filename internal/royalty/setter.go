package royalty

import (
	"fmt"
	"math/big"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// SetterType is the outcome of probing who may configure a collection's royalty.
type SetterType uint8

const (
	SetterAlreadySet SetterType = iota // a setter is registered; only it may update
	SetterERC2981                      // collection reports its own royalties
	SetterOwner                        // collection exposes an owner
	SetterAdmin                        // collection exposes an admin
	SetterNone                         // governance only
)

// String returns the string representation of SetterType
func (t SetterType) String() string {
	switch t {
	case SetterAlreadySet:
		return "ALREADY_SET"
	case SetterERC2981:
		return "ERC2981"
	case SetterOwner:
		return "OWNER"
	case SetterAdmin:
		return "ADMIN"
	default:
		return "NONE"
	}
}

// Ownable is the owner-style capability a collection may expose.
type Ownable interface {
	Owner() common.Address
}

// Administered is the admin-role capability a collection may expose.
type Administered interface {
	Admin() common.Address
}

// ERC2981 is the on-collection royalty capability.
type ERC2981 interface {
	RoyaltyInfo(tokenID, salePrice *big.Int) (common.Address, *big.Int)
}

// Setter authorizes royalty updates against the registry.
type Setter struct {
	registry    *Registry
	collections domain.CollectionDirectory
	governance  common.Address
}

// NewSetter creates a Setter. governance is the protocol owner allowed to configure any
// collection and the fee limit.
func NewSetter(registry *Registry, collections domain.CollectionDirectory, governance common.Address) *Setter {
	return &Setter{registry: registry, collections: collections, governance: governance}
}

// CheckForCollectionSetter inspects the collection and returns the address allowed to set
// its royalty (null for ERC2981 and None) and the detection outcome. A collection that
// cannot be resolved or implements nothing is SetterNone.
func (s *Setter) CheckForCollectionSetter(collection common.Address) (common.Address, SetterType) {
	if info, ok := s.registry.Info(collection); ok && info.Setter != (common.Address{}) {
		return info.Setter, SetterAlreadySet
	}

	impl, ok := s.collections.Collection(collection)
	if !ok {
		return common.Address{}, SetterNone
	}
	if _, ok := impl.(ERC2981); ok {
		return common.Address{}, SetterERC2981
	}
	if o, ok := impl.(Ownable); ok && o.Owner() != (common.Address{}) {
		return o.Owner(), SetterOwner
	}
	if a, ok := impl.(Administered); ok && a.Admin() != (common.Address{}) {
		return a.Admin(), SetterAdmin
	}
	return common.Address{}, SetterNone
}

// SetFee routes an update through whichever path the detected setter allows for caller.
func (s *Setter) SetFee(caller, collection, setter, receiver common.Address, feeBps uint64) error {
	if caller == s.governance {
		return s.UpdateRoyaltyInfoForCollection(caller, collection, setter, receiver, feeBps)
	}
	_, kind := s.CheckForCollectionSetter(collection)
	switch kind {
	case SetterAlreadySet:
		return s.UpdateRoyaltyInfoForCollectionIfSetter(caller, collection, setter, receiver, feeBps)
	case SetterOwner:
		return s.UpdateRoyaltyInfoForCollectionIfOwner(caller, collection, setter, receiver, feeBps)
	case SetterAdmin:
		return s.UpdateRoyaltyInfoForCollectionIfAdmin(caller, collection, setter, receiver, feeBps)
	default:
		return notOwner("setFee", fmt.Errorf("collection %s is %s; governance only", collection.Hex(), kind))
	}
}

// UpdateRoyaltyInfoForCollectionIfOwner lets the collection owner register the first setter.
func (s *Setter) UpdateRoyaltyInfoForCollectionIfOwner(caller, collection, setter, receiver common.Address, feeBps uint64) error {
	const op = "updateRoyaltyInfoForCollectionIfOwner"
	if err := s.firstAssignment(op, collection); err != nil {
		return err
	}
	impl, _ := s.collections.Collection(collection)
	o, ok := impl.(Ownable)
	if !ok || o.Owner() != caller {
		return notOwner(op, nil)
	}
	return s.registry.UpdateRoyaltyInfo(collection, setter, receiver, feeBps)
}

// UpdateRoyaltyInfoForCollectionIfAdmin lets the collection admin register the first setter.
func (s *Setter) UpdateRoyaltyInfoForCollectionIfAdmin(caller, collection, setter, receiver common.Address, feeBps uint64) error {
	const op = "updateRoyaltyInfoForCollectionIfAdmin"
	if err := s.firstAssignment(op, collection); err != nil {
		return err
	}
	impl, _ := s.collections.Collection(collection)
	a, ok := impl.(Administered)
	if !ok || a.Admin() != caller {
		return notOwner(op, fmt.Errorf("not the admin"))
	}
	return s.registry.UpdateRoyaltyInfo(collection, setter, receiver, feeBps)
}

// UpdateRoyaltyInfoForCollectionIfSetter lets the registered setter update the entry,
// including handing the setter role to someone else.
func (s *Setter) UpdateRoyaltyInfoForCollectionIfSetter(caller, collection, setter, receiver common.Address, feeBps uint64) error {
	info, ok := s.registry.Info(collection)
	if !ok || info.Setter != caller {
		return domain.NewError(domain.KindSetterNotTheSetter, "updateRoyaltyInfoForCollectionIfSetter", nil)
	}
	return s.registry.UpdateRoyaltyInfo(collection, setter, receiver, feeBps)
}

// UpdateRoyaltyInfoForCollection is the governance path; it works for any collection.
func (s *Setter) UpdateRoyaltyInfoForCollection(caller, collection, setter, receiver common.Address, feeBps uint64) error {
	if caller != s.governance {
		return notOwner("updateRoyaltyInfoForCollection", nil)
	}
	return s.registry.UpdateRoyaltyInfo(collection, setter, receiver, feeBps)
}

// UpdateRoyaltyFeeLimit is the governance path for the global ceiling.
func (s *Setter) UpdateRoyaltyFeeLimit(caller common.Address, newLimit uint64) error {
	if caller != s.governance {
		return notOwner("updateRoyaltyFeeLimit", nil)
	}
	return s.registry.UpdateFeeLimit(newLimit)
}

func (s *Setter) firstAssignment(op string, collection common.Address) error {
	if info, ok := s.registry.Info(collection); ok && info.Setter != (common.Address{}) {
		return notOwner(op, fmt.Errorf("setter already set"))
	}
	impl, ok := s.collections.Collection(collection)
	if !ok {
		return notOwner(op, domain.ErrUnknownCollection)
	}
	if _, ok := impl.(ERC2981); ok {
		return notOwner(op, fmt.Errorf("collection implements ERC2981"))
	}
	return nil
}

func notOwner(op string, err error) error {
	return domain.NewError(domain.KindOwnerNotTheOwner, op, err)
}
