package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const saltLen = 32

// EncryptMnemonicOpts is the struct given to EncryptMnemonic method
type EncryptMnemonicOpts struct {
	Mnemonic   []string
	Passphrase string
}

func (o EncryptMnemonicOpts) validate() error {
	if len(o.Mnemonic) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// EncryptMnemonic encrypts (AES-256-GCM) the mnemonic with a key stretched
// from the passphrase. The result is base64(nonce|cyphertext|salt).
func EncryptMnemonic(opts EncryptMnemonicOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	key, salt, err := deriveEncryptionKey([]byte(opts.Passphrase), nil)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	plaintext := []byte(strings.Join(opts.Mnemonic, " "))
	cyphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	cyphertext = append(cyphertext, salt...)

	return base64.StdEncoding.EncodeToString(cyphertext), nil
}

// DecryptMnemonicOpts is the struct given to DecryptMnemonic method
type DecryptMnemonicOpts struct {
	CypherText string
	Passphrase string
}

func (o DecryptMnemonicOpts) validate() error {
	if len(o.CypherText) <= 0 {
		return ErrNullCypherText
	}
	data, err := base64.StdEncoding.DecodeString(o.CypherText)
	if err != nil || len(data) <= saltLen {
		return ErrInvalidCypherText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return nil
}

// DecryptMnemonic reverts EncryptMnemonic
func DecryptMnemonic(opts DecryptMnemonicOpts) ([]string, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	data, _ := base64.StdEncoding.DecodeString(opts.CypherText)
	salt, data := data[len(data)-saltLen:], data[:len(data)-saltLen]

	key, _, err := deriveEncryptionKey([]byte(opts.Passphrase), salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, text, nil)
	if err != nil {
		return nil, err
	}

	mnemonic := strings.Split(string(plaintext), " ")
	if !isMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	return mnemonic, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

func deriveEncryptionKey(passphrase, salt []byte) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltLen)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	// N=2^15 keeps interactive CLI unlocks under a second
	key, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}
