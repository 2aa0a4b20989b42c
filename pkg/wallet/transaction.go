package wallet

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

const (
	// TargetOutputIndex is the position of the payment output
	TargetOutputIndex uint32 = 0
	// ChangeOutputIndex is the position of the change output, if any
	ChangeOutputIndex uint32 = 1

	txVersion = 2
	// maxSignatureSize is the length of a low-S DER signature with a 33
	// bytes r value, sighash flag included.
	maxSignatureSize = 72
)

var (
	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("invalid address")
	// ErrDustOutput ...
	ErrDustOutput = errors.New("output amount must be greater than dust threshold")
	// ErrEmptyUtxoSet ...
	ErrEmptyUtxoSet = errors.New("utxo list must not be empty")
	// ErrKeyMismatch ...
	ErrKeyMismatch = errors.New("key material does not match utxo address")
	// ErrInvalidSequence ...
	ErrInvalidSequence = fmt.Errorf(
		"sequence must be at most %#x or exactly %#x",
		MaxRBFSequence, ForbidRBFSequence,
	)
	// ErrNegativeAmount ...
	ErrNegativeAmount = errors.New("amount and change must not be negative")
	// ErrInvalidInput ...
	ErrInvalidInput = errors.New(
		"utxo must have a valid txid and a positive value",
	)
	// ErrUnsupportedScriptType ...
	ErrUnsupportedScriptType = errors.New(
		"utxo script type must be one of p2pkh, p2sh-p2wpkh, p2wpkh",
	)
)

// Input is a coin spent by a transaction.
type Input struct {
	TxID       string
	Vout       uint32
	Value      int64
	Address    string
	ScriptType ScriptType
}

// BuildTxOpts is the struct given to BuildTx and BuildFakeTx methods
type BuildTxOpts struct {
	Amount        int64
	TargetAddress string
	Change        int64
	ChangeAddress string
	Inputs        []Input
	// Keys maps every input address to the key material controlling it.
	// Ignored by BuildFakeTx.
	Keys      map[string]KeyMaterial
	Network   Network
	Sequence  uint32
	AllowDust bool
}

func (o BuildTxOpts) validate() error {
	if len(o.Inputs) <= 0 {
		return ErrEmptyUtxoSet
	}
	if o.Network.Params == nil {
		return ErrInvalidNetwork
	}
	if o.Amount < 0 || o.Change < 0 {
		return ErrNegativeAmount
	}
	if _, err := ScriptForAddress(o.TargetAddress, o.Network); err != nil {
		return fmt.Errorf("target: %w", err)
	}
	if o.Change > 0 {
		if _, err := ScriptForAddress(o.ChangeAddress, o.Network); err != nil {
			return fmt.Errorf("change: %w", err)
		}
	}
	if !o.AllowDust && !IsAboveDust(o.Amount, o.TargetAddress, o.Network) {
		return ErrDustOutput
	}
	if !IsValidSequence(o.Sequence) {
		return ErrInvalidSequence
	}

	for i, in := range o.Inputs {
		if _, err := chainhash.NewHashFromStr(in.TxID); err != nil || in.Value <= 0 {
			return fmt.Errorf("input %d: %w", i, ErrInvalidInput)
		}
		if !in.ScriptType.IsSignable() {
			return fmt.Errorf("input %d: %w", i, ErrUnsupportedScriptType)
		}
	}
	return nil
}

func (o BuildTxOpts) validateKeys() error {
	for i, in := range o.Inputs {
		key, ok := o.Keys[in.Address]
		if !ok || key.PrivateKey == nil || key.Scheme == nil {
			return fmt.Errorf("input %d: %w", i, ErrKeyMismatch)
		}
		if key.Address != in.Address || key.Scheme.ScriptType != in.ScriptType {
			return fmt.Errorf("input %d: %w", i, ErrKeyMismatch)
		}
		addr, err := key.Scheme.AddressFromPubKey(
			key.PrivateKey.PubKey(), o.Network,
		)
		if err != nil || addr != in.Address {
			return fmt.Errorf("input %d: %w", i, ErrKeyMismatch)
		}
	}
	return nil
}

// HasChangeOutput returns whether the built transaction is going to include
// a change output.
func (o BuildTxOpts) HasChangeOutput() bool {
	if o.Change <= 0 {
		return false
	}
	return o.AllowDust || IsAboveDust(o.Change, o.ChangeAddress, o.Network)
}

// BuildTx creates a transaction spending all inputs to the target and
// (optionally) the change address and signs every input with the related
// key material. The change output is omitted if dust.
func BuildTx(opts BuildTxOpts) (*wire.MsgTx, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := opts.validateKeys(); err != nil {
		return nil, err
	}

	keys := make([]KeyMaterial, 0, len(opts.Inputs))
	for _, in := range opts.Inputs {
		keys = append(keys, opts.Keys[in.Address])
	}

	return buildAndSign(opts, opts.Inputs, keys)
}

// BuildFakeTx is like BuildTx but signs every input with a random key pair
// of the same script type of the input, then replaces every signature with
// a placeholder of the maximum length. The result is never smaller than the
// real transaction and is meant for fee estimation only.
func BuildFakeTx(opts BuildTxOpts) (*wire.MsgTx, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	inputs := make([]Input, 0, len(opts.Inputs))
	keys := make([]KeyMaterial, 0, len(opts.Inputs))
	for _, in := range opts.Inputs {
		scheme, err := SchemeForScriptType(in.ScriptType)
		if err != nil {
			return nil, err
		}
		key, err := NewRandomKeyMaterial(scheme, opts.Network)
		if err != nil {
			return nil, err
		}
		in.Address = key.Address
		inputs = append(inputs, in)
		keys = append(keys, key)
	}

	tx, err := buildAndSign(opts, inputs, keys)
	if err != nil {
		return nil, err
	}
	if err := padSignatures(tx, keys); err != nil {
		return nil, err
	}
	return tx, nil
}

func padSignatures(tx *wire.MsgTx, keys []KeyMaterial) error {
	for i, in := range tx.TxIn {
		sig := make([]byte, maxSignatureSize)
		switch keys[i].Scheme.ScriptType {
		case ScriptTypeP2WPKH, ScriptTypeP2SHP2WPKH:
			in.Witness[0] = sig
		case ScriptTypeP2PKH:
			sigScript, err := txscript.NewScriptBuilder().
				AddData(sig).
				AddData(keys[i].PrivateKey.PubKey().SerializeCompressed()).
				Script()
			if err != nil {
				return err
			}
			in.SignatureScript = sigScript
		default:
			return ErrUnsupportedScriptType
		}
	}
	return nil
}

func buildAndSign(
	opts BuildTxOpts, inputs []Input, keys []KeyMaterial,
) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(txVersion)
	prevOuts := make([]*wire.TxOut, 0, len(inputs))

	for _, in := range inputs {
		hash, _ := chainhash.NewHashFromStr(in.TxID)
		txIn := wire.NewTxIn(wire.NewOutPoint(hash, in.Vout), nil, nil)
		txIn.Sequence = opts.Sequence
		tx.AddTxIn(txIn)

		script, err := ScriptForAddress(in.Address, opts.Network)
		if err != nil {
			return nil, err
		}
		prevOuts = append(prevOuts, wire.NewTxOut(in.Value, script))
	}

	targetScript, _ := ScriptForAddress(opts.TargetAddress, opts.Network)
	tx.AddTxOut(wire.NewTxOut(opts.Amount, targetScript))

	if opts.HasChangeOutput() {
		changeScript, _ := ScriptForAddress(opts.ChangeAddress, opts.Network)
		tx.AddTxOut(wire.NewTxOut(opts.Change, changeScript))
	}

	if err := signTransaction(tx, prevOuts, keys, opts.Network); err != nil {
		return nil, err
	}
	return tx, nil
}

// SerializeTx returns the hex encoded serialization of the transaction
func SerializeTx(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

// DeserializeTx parses a hex encoded transaction
func DeserializeTx(txHex string) (*wire.MsgTx, error) {
	buf, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(txVersion)
	if err := tx.Deserialize(bytes.NewReader(buf)); err != nil {
		return nil, err
	}
	return tx, nil
}
