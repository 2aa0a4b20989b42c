package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic must not be null")
	// ErrNullPassphrase ...
	ErrNullPassphrase = errors.New("passphrase must not be null")
	// ErrNullPlainText ...
	ErrNullPlainText = errors.New("text to encrypt must not be null")
	// ErrNullCypherText ...
	ErrNullCypherText = errors.New("cypher to decrypt must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullScheme ...
	ErrNullScheme = errors.New("derivation scheme must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrInvalidCypherText ...
	ErrInvalidCypherText = errors.New("cypher must be in base64 format")
	// ErrInvalidDerivationPath ...
	ErrInvalidDerivationPath = errors.New("invalid derivation path")
	// ErrInvalidBranch ...
	ErrInvalidBranch = errors.New(
		"branch must be either 0 (external) or 1 (internal)",
	)
	// ErrInvalidNetwork ...
	ErrInvalidNetwork = errors.New("network must be either mainnet or testnet")
	// ErrInvalidScheme ...
	ErrInvalidScheme = errors.New(
		"scheme must be one of legacy, wrapped-segwit, native-segwit",
	)
	// ErrOutOfRangeAccount ...
	ErrOutOfRangeAccount = fmt.Errorf(
		"account must be in range [0, %d]", MaxHardenedValue,
	)

	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
)

// Wallet holds the mnemonic and master key of a BIP32 HD wallet and derives
// key pairs and addresses for any of the supported schemes.
type Wallet struct {
	mnemonic  string
	seed      []byte
	masterKey *hdkeychain.ExtendedKey
	network   Network
}

// NewWalletOpts is the struct given to the NewWallet method
type NewWalletOpts struct {
	EntropySize int
	Network     Network
}

func (o NewWalletOpts) validate() error {
	if o.EntropySize < 128 || o.EntropySize > 256 || o.EntropySize%32 != 0 {
		return ErrInvalidEntropySize
	}
	if o.Network.Params == nil {
		return ErrInvalidNetwork
	}
	return nil
}

// NewWallet creates a new wallet from a randomly generated mnemonic
func NewWallet(opts NewWalletOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic, err := NewMnemonic(NewMnemonicOpts{EntropySize: opts.EntropySize})
	if err != nil {
		return nil, err
	}

	return NewWalletFromMnemonic(NewWalletFromMnemonicOpts{
		Mnemonic: mnemonic,
		Network:  opts.Network,
	})
}

// NewWalletFromMnemonicOpts is the struct given to the NewWalletFromMnemonic
// method
type NewWalletFromMnemonicOpts struct {
	Mnemonic   []string
	Passphrase string
	Network    Network
}

func (o NewWalletFromMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullMnemonic
	}
	if !isMnemonicValid(o.Mnemonic) {
		return ErrInvalidMnemonic
	}
	if o.Network.Params == nil {
		return ErrInvalidNetwork
	}
	return nil
}

// NewWalletFromMnemonic restores a wallet from the given mnemonic and
// optional BIP39 passphrase
func NewWalletFromMnemonic(opts NewWalletFromMnemonicOpts) (*Wallet, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	mnemonic := strings.Join(opts.Mnemonic, " ")
	seed := bip39.NewSeed(mnemonic, opts.Passphrase)
	masterKey, err := hdkeychain.NewMaster(seed, opts.Network.Params)
	if err != nil {
		return nil, err
	}

	return &Wallet{
		mnemonic:  mnemonic,
		seed:      seed,
		masterKey: masterKey,
		network:   opts.Network,
	}, nil
}

// Mnemonic returns the mnemonic of the wallet as a list of words
func (w *Wallet) Mnemonic() []string {
	return strings.Split(w.mnemonic, " ")
}

// Seed returns the BIP39 seed the master key is generated from
func (w *Wallet) Seed() []byte {
	return w.seed
}

// Network returns the network the wallet derives addresses for
func (w *Wallet) Network() Network {
	return w.network
}

// BranchKey returns the extended key at m/purpose'/coin'/account'/branch
// for the given scheme
func (w *Wallet) BranchKey(
	scheme *Scheme, account, branch uint32,
) (*hdkeychain.ExtendedKey, error) {
	if scheme == nil {
		return nil, ErrNullScheme
	}
	return scheme.ChangeNode(w.masterKey, w.network, account, branch)
}

// DeriveAddresses derives the addresses of the given scheme/account/branch
// in the index range [from, to)
func (w *Wallet) DeriveAddresses(
	scheme *Scheme, account, branch, from, to uint32,
) ([]string, error) {
	branchKey, err := w.BranchKey(scheme, account, branch)
	if err != nil {
		return nil, err
	}

	addresses := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		addr, err := scheme.DeriveAddress(branchKey, w.network, i)
		if err != nil {
			return nil, fmt.Errorf("derive address at index %d: %w", i, err)
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// KeyMaterial returns the key pair and address at
// m/purpose'/coin'/account'/branch/index for the given scheme
func (w *Wallet) KeyMaterial(
	scheme *Scheme, account, branch, index uint32,
) (KeyMaterial, error) {
	branchKey, err := w.BranchKey(scheme, account, branch)
	if err != nil {
		return KeyMaterial{}, err
	}
	return keyMaterialFromBranch(branchKey, scheme, w.network, index)
}

func isMnemonicValid(mnemonic []string) bool {
	return bip39.IsMnemonicValid(strings.Join(mnemonic, " "))
}
