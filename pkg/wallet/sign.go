package wallet

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// signTransaction signs every input of the transaction with the related key
// and verifies the produced scripts against the spent outputs.
func signTransaction(
	tx *wire.MsgTx, prevOuts []*wire.TxOut, keys []KeyMaterial, net Network,
) error {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOuts[i])
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i := range tx.TxIn {
		if err := signInput(tx, i, prevOuts[i], keys[i], sigHashes, net); err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
	}

	for i := range tx.TxIn {
		vm, err := txscript.NewEngine(
			prevOuts[i].PkScript, tx, i, txscript.StandardVerifyFlags, nil,
			sigHashes, prevOuts[i].Value, fetcher,
		)
		if err != nil {
			return err
		}
		if err := vm.Execute(); err != nil {
			return fmt.Errorf("signature verification failed for input %d: %w", i, err)
		}
	}
	return nil
}

func signInput(
	tx *wire.MsgTx, inIndex int, prevOut *wire.TxOut, key KeyMaterial,
	sigHashes *txscript.TxSigHashes, net Network,
) error {
	switch key.Scheme.ScriptType {
	case ScriptTypeP2WPKH:
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, inIndex, prevOut.Value, prevOut.PkScript,
			txscript.SigHashAll, key.PrivateKey, true,
		)
		if err != nil {
			return err
		}
		tx.TxIn[inIndex].Witness = witness
		return nil

	case ScriptTypeP2SHP2WPKH:
		pubkeyHash := btcutil.Hash160(key.PrivateKey.PubKey().SerializeCompressed())
		redeemScript, err := p2wpkhScript(pubkeyHash, net)
		if err != nil {
			return err
		}
		witness, err := txscript.WitnessSignature(
			tx, sigHashes, inIndex, prevOut.Value, redeemScript,
			txscript.SigHashAll, key.PrivateKey, true,
		)
		if err != nil {
			return err
		}
		sigScript, err := txscript.NewScriptBuilder().
			AddData(redeemScript).Script()
		if err != nil {
			return err
		}
		tx.TxIn[inIndex].SignatureScript = sigScript
		tx.TxIn[inIndex].Witness = witness
		return nil

	case ScriptTypeP2PKH:
		sigScript, err := txscript.SignatureScript(
			tx, inIndex, prevOut.PkScript, txscript.SigHashAll,
			key.PrivateKey, true,
		)
		if err != nil {
			return err
		}
		tx.TxIn[inIndex].SignatureScript = sigScript
		return nil

	default:
		return ErrUnsupportedScriptType
	}
}
