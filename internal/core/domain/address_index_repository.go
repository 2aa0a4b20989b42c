package domain

import "context"

// AddressIndexRepository persists the address indexes and the derived
// addresses of every wallet. Increments are conditional on the caller
// supplied base index and fail with ErrIndexConflict if it doesn't match the
// persisted one, so that concurrent scans can't lose updates. Indexes are
// never decremented.
type AddressIndexRepository interface {
	// GetIndexes returns all index records of the given wallet
	GetIndexes(ctx context.Context, walletID string) ([]AddressIndexRecord, error)
	// GetAddresses returns all addresses stored for the given wallet
	GetAddresses(ctx context.Context, walletID string) ([]DerivedAddress, error)
	// IncrementIndex moves the index of the given branch path from
	// expectedBase to newIndex
	IncrementIndex(
		ctx context.Context, walletID, path string, newIndex, expectedBase int,
	) error
	// IncrementIndexAndStoreAddresses stores the given addresses and moves the
	// index of the given branch path from expectedBase to the highest index
	// among them, atomically
	IncrementIndexAndStoreAddresses(
		ctx context.Context, walletID, path string,
		addresses []DerivedAddress, expectedBase int,
	) error
}

// ValidateIndexIncrement checks that an increment of a branch index from
// expectedBase to newIndex can be applied on top of the current one.
func ValidateIndexIncrement(current, newIndex, expectedBase int) error {
	if newIndex < -1 || expectedBase < -1 {
		return ErrInvalidIndex
	}
	if current != expectedBase {
		return ErrIndexConflict
	}
	if newIndex <= current {
		return ErrIndexNotIncreasing
	}
	return nil
}

// HighestIndex returns the highest index among the given addresses, or -1
// if the list is empty.
func HighestIndex(addresses []DerivedAddress) int {
	highest := -1
	for _, a := range addresses {
		if int(a.Index) > highest {
			highest = int(a.Index)
		}
	}
	return highest
}

// ValidateAddressesForPath checks that all addresses have been derived from
// the given branch path.
func ValidateAddressesForPath(path string, addresses []DerivedAddress) error {
	if len(addresses) <= 0 {
		return ErrEmptyAddressList
	}
	scheme, info, err := ParseBranchPath(path)
	if err != nil {
		return err
	}
	for _, a := range addresses {
		if a.Scheme == nil || a.Scheme.Purpose != scheme.Purpose ||
			a.Branch != info.Branch {
			return ErrAddressBranchMismatch
		}
	}
	return nil
}
