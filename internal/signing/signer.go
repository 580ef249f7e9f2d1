package signing

import (
	"crypto/ecdsa"
	"fmt"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces maker-order signatures for one key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner creates a Signer from a private key.
func NewSigner(key *ecdsa.PrivateKey) *Signer {
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

// NewSignerFromHex creates a Signer from a hex-encoded private key (no 0x prefix).
func NewSignerFromHex(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewSigner(key), nil
}

// Address returns the signer's address.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage signs a 32-byte message and returns r ‖ s ‖ v with v in {27, 28}.
func (s *Signer) SignMessage(message common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(message.Bytes(), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SignOrder sets o.Signer to the signer's address and fills o.Signature for domain d.
func (s *Signer) SignOrder(d Domain, o *domain.MakerOrder) error {
	o.Signer = s.address
	sig, err := s.SignMessage(SigningMessage(d, OrderHash(o)))
	if err != nil {
		return fmt.Errorf("sign order: %w", err)
	}
	o.Signature = sig
	return nil
}
