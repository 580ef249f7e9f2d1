package signing

import (
	"fmt"
	"math/big"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner returns the address whose key produced signature over message.
// The signature is r ‖ s ‖ v with v in {27, 28} and s in the lower half of the curve order.
func RecoverSigner(message common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, invalid(fmt.Errorf("signature length %d", len(signature)))
	}
	v := signature[crypto.RecoveryIDOffset]
	if v != 27 && v != 28 {
		return common.Address{}, invalid(fmt.Errorf("invalid v parameter %d", v))
	}
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:64])
	if !crypto.ValidateSignatureValues(v-27, r, s, true) {
		return common.Address{}, invalid(fmt.Errorf("invalid r or s parameter"))
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	sig[crypto.RecoveryIDOffset] = v - 27

	pub, err := crypto.SigToPub(message.Bytes(), sig)
	if err != nil {
		return common.Address{}, invalid(err)
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer == (common.Address{}) {
		return common.Address{}, invalid(fmt.Errorf("recovered null signer"))
	}
	return signer, nil
}

// Verify reports whether signature over message was produced by expected.
func Verify(message common.Hash, signature []byte, expected common.Address) bool {
	signer, err := RecoverSigner(message, signature)
	return err == nil && signer == expected
}

// Verifier authenticates maker orders for one Domain.
type Verifier struct {
	domain    Domain
	separator common.Hash
}

// NewVerifier creates a Verifier bound to d.
func NewVerifier(d Domain) *Verifier {
	return &Verifier{domain: d, separator: d.Separator()}
}

// Domain returns the domain the verifier is bound to.
func (v *Verifier) Domain() Domain {
	return v.domain
}

// VerifyOrder checks that o is signed by o.Signer under the verifier's domain and returns
// the order hash, which is the order's canonical identity.
func (v *Verifier) VerifyOrder(o *domain.MakerOrder) (common.Hash, error) {
	orderHash := OrderHash(o)
	for _, x := range []*big.Int{o.Price, o.TokenID, o.Amount} {
		if x != nil && !domain.FitsUint256(x) {
			return orderHash, invalid(fmt.Errorf("%s is not a uint256", x))
		}
	}

	signer, err := RecoverSigner(signingMessage(v.separator, orderHash), o.Signature)
	if err != nil {
		return orderHash, err
	}
	if signer != o.Signer {
		return orderHash, invalid(fmt.Errorf("recovered %s, expected %s", signer.Hex(), o.Signer.Hex()))
	}
	return orderHash, nil
}

func invalid(err error) error {
	return domain.NewError(domain.KindSignatureInvalid, "verify", err)
}
