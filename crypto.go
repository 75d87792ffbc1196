package parallel

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

// GetHash returns the keccak256 digest used for every signature in the system.
func GetHash(data []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hash.Sum(nil)
}

func PubkeyToAddr(pubkey *ecdsa.PublicKey, hrp string) (string, error) {
	addr := crypto.PubkeyToAddress(*pubkey)
	return bech32.ConvertAndEncode(hrp, addr.Bytes())
}

func PrivKeyToAddr(privatekey string, hrp string) (string, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return "", fmt.Errorf("invalid private key: %w", err)
	}
	return PubkeyToAddr(&key.PublicKey, hrp)
}

func SignBytes(data []byte, privatekey string) ([]byte, error) {
	key, err := crypto.HexToECDSA(privatekey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.Sign(GetHash(data), key)
}

// VerifySignature recovers the signer of data and checks it against keyID,
// which may be any bech32 address (ccid, csid or ckid).
func VerifySignature(data []byte, signature []byte, keyID string) error {
	_, expected, err := bech32.DecodeAndConvert(keyID)
	if err != nil {
		return fmt.Errorf("invalid key id %s: %w", keyID, err)
	}

	pubkey, err := crypto.SigToPub(GetHash(data), signature)
	if err != nil {
		return fmt.Errorf("failed to recover public key: %w", err)
	}

	actual := crypto.PubkeyToAddress(*pubkey)
	if !bytes.Equal(actual.Bytes(), expected) {
		return fmt.Errorf("signature does not match %s", keyID)
	}

	return nil
}
