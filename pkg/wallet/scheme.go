package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// ExternalBranch is the receiving branch of an account
	ExternalBranch uint32 = 0
	// InternalBranch is the change branch of an account
	InternalBranch uint32 = 1
)

// ScriptType is the kind of locking script of an output.
type ScriptType int

const (
	ScriptTypeNonStandard ScriptType = iota
	ScriptTypeP2PKH
	ScriptTypeP2SH
	ScriptTypeP2SHP2WPKH
	ScriptTypeP2WPKH
	ScriptTypeP2WSH
	ScriptTypeP2TR
)

var scriptTypeNames = map[ScriptType]string{
	ScriptTypeNonStandard: "nonstandard",
	ScriptTypeP2PKH:       "p2pkh",
	ScriptTypeP2SH:        "p2sh",
	ScriptTypeP2SHP2WPKH:  "p2sh-p2wpkh",
	ScriptTypeP2WPKH:      "p2wpkh",
	ScriptTypeP2WSH:       "p2wsh",
	ScriptTypeP2TR:        "p2tr",
}

func (t ScriptType) String() string {
	if name, ok := scriptTypeNames[t]; ok {
		return name
	}
	return scriptTypeNames[ScriptTypeNonStandard]
}

// IsSignable returns whether the wallet knows how to sign an input locked
// by a script of this type. Plain P2SH is not signable until it is proven
// to wrap a P2WPKH program of the wallet.
func (t ScriptType) IsSignable() bool {
	switch t {
	case ScriptTypeP2PKH, ScriptTypeP2WPKH, ScriptTypeP2SHP2WPKH:
		return true
	default:
		return false
	}
}

// IsSegwit returns whether spending an output of this type produces
// witness data.
func (t ScriptType) IsSegwit() bool {
	switch t {
	case ScriptTypeP2SHP2WPKH, ScriptTypeP2WPKH, ScriptTypeP2WSH, ScriptTypeP2TR:
		return true
	default:
		return false
	}
}

// ScriptTypeForScript classifies an output script.
func ScriptTypeForScript(script []byte) ScriptType {
	switch txscript.GetScriptClass(script) {
	case txscript.PubKeyHashTy:
		return ScriptTypeP2PKH
	case txscript.ScriptHashTy:
		return ScriptTypeP2SH
	case txscript.WitnessV0PubKeyHashTy:
		return ScriptTypeP2WPKH
	case txscript.WitnessV0ScriptHashTy:
		return ScriptTypeP2WSH
	case txscript.WitnessV1TaprootTy:
		return ScriptTypeP2TR
	default:
		return ScriptTypeNonStandard
	}
}

// ScriptTypeForAddress classifies the output script an address pays to.
func ScriptTypeForAddress(addr string, net Network) (ScriptType, error) {
	script, err := ScriptForAddress(addr, net)
	if err != nil {
		return ScriptTypeNonStandard, err
	}
	return ScriptTypeForScript(script), nil
}

// ScriptForAddress returns the output script paying to the given address.
func ScriptForAddress(addr string, net Network) ([]byte, error) {
	if len(addr) <= 0 {
		return nil, ErrInvalidAddress
	}
	decoded, err := btcutil.DecodeAddress(addr, net.Params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if !decoded.IsForNet(net.Params) {
		return nil, fmt.Errorf("%w: not a %s address", ErrInvalidAddress, net)
	}
	return txscript.PayToAddrScript(decoded)
}

// Scheme is one of the supported BIP44-like derivation schemes. Each scheme
// fixes the purpose of the derivation path and the kind of address derived
// from a public key.
type Scheme struct {
	Name       string
	Purpose    uint32
	ScriptType ScriptType
}

var (
	// Legacy derives P2PKH addresses at m/44'/coin'/account'/branch/index
	Legacy = &Scheme{Name: "legacy", Purpose: 44, ScriptType: ScriptTypeP2PKH}
	// WrappedSegwit derives P2SH-P2WPKH addresses at
	// m/49'/coin'/account'/branch/index
	WrappedSegwit = &Scheme{
		Name: "wrapped-segwit", Purpose: 49, ScriptType: ScriptTypeP2SHP2WPKH,
	}
	// NativeSegwit derives P2WPKH addresses at
	// m/84'/coin'/account'/branch/index
	NativeSegwit = &Scheme{
		Name: "native-segwit", Purpose: 84, ScriptType: ScriptTypeP2WPKH,
	}

	// Schemes lists all supported schemes
	Schemes = []*Scheme{Legacy, WrappedSegwit, NativeSegwit}
)

// SchemeByName returns the scheme with the given name.
func SchemeByName(name string) (*Scheme, error) {
	for _, s := range Schemes {
		if s.Name == name {
			return s, nil
		}
	}
	return nil, ErrInvalidScheme
}

// SchemeByPurpose returns the scheme with the given BIP43 purpose.
func SchemeByPurpose(purpose uint32) (*Scheme, error) {
	for _, s := range Schemes {
		if s.Purpose == purpose {
			return s, nil
		}
	}
	return nil, ErrInvalidScheme
}

// SchemeForScriptType returns the scheme deriving addresses of the given
// script type.
func SchemeForScriptType(scriptType ScriptType) (*Scheme, error) {
	for _, s := range Schemes {
		if s.ScriptType == scriptType {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unsupported script type %s", scriptType)
}

func (s *Scheme) String() string {
	return s.Name
}

// PathTemplate returns the account path m/purpose'/coin'/account'.
func (s *Scheme) PathTemplate(net Network, account uint32) DerivationPath {
	return DerivationPath{
		hdkeychain.HardenedKeyStart + s.Purpose,
		hdkeychain.HardenedKeyStart + net.CoinIndex,
		hdkeychain.HardenedKeyStart + account,
	}
}

// BranchPath returns the branch path m/purpose'/coin'/account'/branch.
func (s *Scheme) BranchPath(net Network, account, branch uint32) DerivationPath {
	return append(s.PathTemplate(net, account), branch)
}

// AddressPath returns the full path m/purpose'/coin'/account'/branch/index.
func (s *Scheme) AddressPath(
	net Network, account, branch, index uint32,
) DerivationPath {
	return append(s.BranchPath(net, account, branch), index)
}

// AddressFromPubKey encodes the address of the scheme for the given key.
func (s *Scheme) AddressFromPubKey(
	pubkey *btcec.PublicKey, net Network,
) (string, error) {
	addr, err := s.address(pubkey, net)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// ScriptFromPubKey returns the output script of the scheme for the given key.
func (s *Scheme) ScriptFromPubKey(
	pubkey *btcec.PublicKey, net Network,
) ([]byte, error) {
	addr, err := s.address(pubkey, net)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}

// ChangeNode derives the extended key of the given branch of an account
// starting from the master key.
func (s *Scheme) ChangeNode(
	master *hdkeychain.ExtendedKey, net Network, account, branch uint32,
) (*hdkeychain.ExtendedKey, error) {
	if account > MaxHardenedValue {
		return nil, ErrOutOfRangeAccount
	}
	if branch != ExternalBranch && branch != InternalBranch {
		return nil, ErrInvalidBranch
	}

	key := master
	for _, step := range s.BranchPath(net, account, branch) {
		var err error
		key, err = key.Derive(step)
		if err != nil {
			return nil, err
		}
	}
	return key, nil
}

// DeriveAddress derives the address at the given index of a branch key
// previously obtained with ChangeNode.
func (s *Scheme) DeriveAddress(
	branchKey *hdkeychain.ExtendedKey, net Network, index uint32,
) (string, error) {
	child, err := branchKey.Derive(index)
	if err != nil {
		return "", err
	}
	pubkey, err := child.ECPubKey()
	if err != nil {
		return "", err
	}
	return s.AddressFromPubKey(pubkey, net)
}

func (s *Scheme) address(
	pubkey *btcec.PublicKey, net Network,
) (btcutil.Address, error) {
	pubkeyHash := btcutil.Hash160(pubkey.SerializeCompressed())

	switch s.ScriptType {
	case ScriptTypeP2PKH:
		return btcutil.NewAddressPubKeyHash(pubkeyHash, net.Params)
	case ScriptTypeP2WPKH:
		return btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, net.Params)
	case ScriptTypeP2SHP2WPKH:
		redeemScript, err := p2wpkhScript(pubkeyHash, net)
		if err != nil {
			return nil, err
		}
		return btcutil.NewAddressScriptHash(redeemScript, net.Params)
	default:
		return nil, fmt.Errorf("unsupported script type %s", s.ScriptType)
	}
}

func p2wpkhScript(pubkeyHash []byte, net Network) ([]byte, error) {
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubkeyHash, net.Params)
	if err != nil {
		return nil, err
	}
	return txscript.PayToAddrScript(addr)
}
