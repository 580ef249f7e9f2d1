package signing

import (
	"math/big"

	"booksrare_go/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Default EIP-712 domain values of the exchange.
const (
	DefaultDomainName    = "BooksRareExchange"
	DefaultDomainVersion = "1"
)

// Pre-computed type hashes using keccak256
var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))

	// MakerOrderTypeHash is 0x40261ade532fa1d2c7293df30aaadb9b3c616fae525a0b56d3d411c841a85028.
	MakerOrderTypeHash = crypto.Keccak256Hash([]byte(
		"MakerOrder(bool isOrderAsk,address signer,address collection,uint256 price,uint256 tokenId,uint256 amount,address strategy,address currency,uint256 nonce,uint256 startTime,uint256 endTime,uint256 minPercentageToAsk,bytes params)",
	))
)

var (
	bytes32Type = mustType("bytes32")
	uint256Type = mustType("uint256")
	addressType = mustType("address")
	boolType    = mustType("bool")

	domainArguments = abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: bytes32Type}, // nameHash
		{Type: bytes32Type}, // versionHash
		{Type: uint256Type}, // chainId
		{Type: addressType}, // verifyingContract
	}

	makerOrderArguments = abi.Arguments{
		{Type: bytes32Type}, // typeHash
		{Type: boolType},    // isOrderAsk
		{Type: addressType}, // signer
		{Type: addressType}, // collection
		{Type: uint256Type}, // price
		{Type: uint256Type}, // tokenId
		{Type: uint256Type}, // amount
		{Type: addressType}, // strategy
		{Type: addressType}, // currency
		{Type: uint256Type}, // nonce
		{Type: uint256Type}, // startTime
		{Type: uint256Type}, // endTime
		{Type: uint256Type}, // minPercentageToAsk
		{Type: bytes32Type}, // keccak256(params)
	}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic("signing: bad abi type " + name + ": " + err.Error())
	}
	return t
}

// Domain identifies one deployment of the exchange. Signatures made for one Domain never
// verify under another.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain creates a Domain with the default name and version.
func NewDomain(chainID *big.Int, verifyingContract common.Address) Domain {
	return Domain{
		Name:              DefaultDomainName,
		Version:           DefaultDomainVersion,
		ChainID:           chainID,
		VerifyingContract: verifyingContract,
	}
}

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	encoded, err := domainArguments.Pack(
		EIP712DomainTypeHash,
		crypto.Keccak256Hash([]byte(d.Name)),
		crypto.Keccak256Hash([]byte(d.Version)),
		u256(d.ChainID),
		d.VerifyingContract,
	)
	if err != nil {
		panic("failed to encode domain separator: " + err.Error())
	}
	return crypto.Keccak256Hash(encoded)
}

// OrderHash computes the struct hash of a maker order over every field except the
// signature. The params payload contributes its keccak256, keeping the encoding fixed-size.
func OrderHash(o *domain.MakerOrder) common.Hash {
	encoded, err := makerOrderArguments.Pack(
		MakerOrderTypeHash,
		o.Side.IsAsk(),
		o.Signer,
		o.Collection,
		u256(o.Price),
		u256(o.TokenID),
		u256(o.Amount),
		o.Strategy,
		o.Currency,
		new(big.Int).SetUint64(o.Nonce),
		new(big.Int).SetUint64(o.StartTime),
		new(big.Int).SetUint64(o.EndTime),
		new(big.Int).SetUint64(o.MinPercentageToAsk),
		crypto.Keccak256Hash(o.Params),
	)
	if err != nil {
		panic("failed to encode maker order: " + err.Error())
	}
	return crypto.Keccak256Hash(encoded)
}

// SigningMessage binds an order hash to a domain:
// keccak256("\x19\x01" ++ domainSeparator ++ orderHash).
func SigningMessage(d Domain, orderHash common.Hash) common.Hash {
	return signingMessage(d.Separator(), orderHash)
}

// signingMessage is SigningMessage over an already computed domain separator.
func signingMessage(separator, orderHash common.Hash) common.Hash {
	data := make([]byte, 0, 2+32+32)
	data = append(data, 0x19, 0x01)
	data = append(data, separator.Bytes()...)
	data = append(data, orderHash.Bytes()...)
	return crypto.Keccak256Hash(data)
}

func u256(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}
