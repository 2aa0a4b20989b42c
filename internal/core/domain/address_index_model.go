package domain

import (
	"sort"

	"github.com/tdex-network/tdex-btc-wallet/pkg/wallet"
)

// AddressIndexRecord tracks the last allocated address index of a
// derivation branch, identified by its path m/purpose'/coin'/account'/branch.
// Index -1 means the branch has never been used.
type AddressIndexRecord struct {
	Path  string
	Index int
}

// DerivedAddress is an address of the wallet together with its position in
// the derivation tree. It's never persisted as an entity since it can be
// recomputed from seed and index.
type DerivedAddress struct {
	Address string
	Scheme  *wallet.Scheme
	Branch  uint32
	Index   uint32
}

// IsInternal returns whether the address belongs to the change branch
func (a DerivedAddress) IsInternal() bool {
	return a.Branch == wallet.InternalBranch
}

// BranchPath returns the string path m/purpose'/coin'/account'/branch of the
// given scheme
func BranchPath(scheme *wallet.Scheme, net wallet.Network, account, branch uint32) string {
	return scheme.BranchPath(net, account, branch).String()
}

// ParseBranchPath parses a branch path and returns the scheme it belongs to
// together with its components.
func ParseBranchPath(path string) (*wallet.Scheme, *wallet.BranchPathInfo, error) {
	derivationPath, err := wallet.ParseDerivationPath(path)
	if err != nil {
		return nil, nil, err
	}
	info, err := derivationPath.BranchInfo()
	if err != nil {
		return nil, nil, err
	}
	scheme, err := wallet.SchemeByPurpose(info.Purpose)
	if err != nil {
		return nil, nil, err
	}
	return scheme, info, nil
}

// FindIndexRecord returns the record of the given branch path, if any
func FindIndexRecord(
	records []AddressIndexRecord, path string,
) (AddressIndexRecord, bool) {
	for _, r := range records {
		if r.Path == path {
			return r, true
		}
	}
	return AddressIndexRecord{}, false
}

// LastIndex returns the last allocated index of the given branch path, or -1
// if the branch has never been used
func LastIndex(records []AddressIndexRecord, path string) int {
	r, ok := FindIndexRecord(records, path)
	if !ok || r.Index < -1 {
		return -1
	}
	return r.Index
}

// NextUnusedIndex returns the first index of the given branch path that has
// not been allocated yet
func NextUnusedIndex(records []AddressIndexRecord, path string) uint32 {
	return uint32(LastIndex(records, path) + 1)
}

// AddressBook indexes the derived addresses of a wallet by address.
type AddressBook map[string]DerivedAddress

// NewAddressBook returns an AddressBook for the given list
func NewAddressBook(addresses []DerivedAddress) AddressBook {
	book := make(AddressBook, len(addresses))
	for _, a := range addresses {
		book[a.Address] = a
	}
	return book
}

// Contains returns whether the address belongs to the wallet
func (b AddressBook) Contains(addr string) bool {
	_, ok := b[addr]
	return ok
}

// IsInternal returns whether the address belongs to a change branch of the
// wallet
func (b AddressBook) IsInternal(addr string) bool {
	a, ok := b[addr]
	return ok && a.IsInternal()
}

// ScriptType returns the script type of an address of the wallet
func (b AddressBook) ScriptType(addr string) (wallet.ScriptType, bool) {
	a, ok := b[addr]
	if !ok || a.Scheme == nil {
		return wallet.ScriptTypeNonStandard, false
	}
	return a.Scheme.ScriptType, true
}

// Addresses returns the sorted list of addresses of the book
func (b AddressBook) Addresses() []string {
	addresses := make([]string, 0, len(b))
	for addr := range b {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	return addresses
}

// SortAddresses sorts the given addresses by scheme, branch and index.
func SortAddresses(addresses []DerivedAddress) {
	sort.SliceStable(addresses, func(i, j int) bool {
		a, b := addresses[i], addresses[j]
		pa, pb := purposeOf(a), purposeOf(b)
		if pa != pb {
			return pa < pb
		}
		if a.Branch != b.Branch {
			return a.Branch < b.Branch
		}
		return a.Index < b.Index
	})
}

func purposeOf(a DerivedAddress) uint32 {
	if a.Scheme == nil {
		return 0
	}
	return a.Scheme.Purpose
}
