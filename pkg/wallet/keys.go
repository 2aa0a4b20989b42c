package wallet

import (
	"math"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// MaxHardenedValue is the max value for hardened indexes of BIP32
	// derivation paths
	MaxHardenedValue = math.MaxUint32 - hdkeychain.HardenedKeyStart
)

// KeyMaterial links an address of the wallet to the key pair controlling it.
type KeyMaterial struct {
	Address    string
	Scheme     *Scheme
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
}

// DeriveKeyPairOpts is the struct given to DeriveKeyPair method
type DeriveKeyPairOpts struct {
	Seed           []byte
	DerivationPath string
	Network        Network
}

func (o DeriveKeyPairOpts) validate() error {
	if len(o.Seed) <= 0 {
		return ErrNullMnemonic
	}
	if o.Network.Params == nil {
		return ErrInvalidNetwork
	}
	path, err := ParseDerivationPath(o.DerivationPath)
	if err != nil {
		return err
	}
	if len(path) <= 0 {
		return ErrNullDerivationPath
	}
	return nil
}

// DeriveKeyPair derives the key pair at the given absolute path from a
// BIP39 seed
func DeriveKeyPair(
	opts DeriveKeyPairOpts,
) (*btcec.PrivateKey, *btcec.PublicKey, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}

	key, err := hdkeychain.NewMaster(opts.Seed, opts.Network.Params)
	if err != nil {
		return nil, nil, err
	}
	path, _ := ParseDerivationPath(opts.DerivationPath)
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, nil, err
		}
	}

	prvkey, err := key.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	return prvkey, prvkey.PubKey(), nil
}

// ScriptFor returns the output script of the given type for a public key.
func ScriptFor(
	scriptType ScriptType, pubkey *btcec.PublicKey, net Network,
) ([]byte, error) {
	scheme, err := SchemeForScriptType(scriptType)
	if err != nil {
		return nil, err
	}
	return scheme.ScriptFromPubKey(pubkey, net)
}

// NewRandomKeyMaterial returns a throw-away key pair whose address is of the
// same type of the given scheme.
func NewRandomKeyMaterial(scheme *Scheme, net Network) (KeyMaterial, error) {
	prvkey, err := btcec.NewPrivateKey()
	if err != nil {
		return KeyMaterial{}, err
	}
	addr, err := scheme.AddressFromPubKey(prvkey.PubKey(), net)
	if err != nil {
		return KeyMaterial{}, err
	}
	return KeyMaterial{
		Address:    addr,
		Scheme:     scheme,
		PrivateKey: prvkey,
		PublicKey:  prvkey.PubKey(),
	}, nil
}

func keyMaterialFromBranch(
	branchKey *hdkeychain.ExtendedKey, scheme *Scheme, net Network, index uint32,
) (KeyMaterial, error) {
	child, err := branchKey.Derive(index)
	if err != nil {
		return KeyMaterial{}, err
	}
	prvkey, err := child.ECPrivKey()
	if err != nil {
		return KeyMaterial{}, err
	}
	addr, err := scheme.AddressFromPubKey(prvkey.PubKey(), net)
	if err != nil {
		return KeyMaterial{}, err
	}
	return KeyMaterial{
		Address:    addr,
		Scheme:     scheme,
		PrivateKey: prvkey,
		PublicKey:  prvkey.PubKey(),
	}, nil
}
