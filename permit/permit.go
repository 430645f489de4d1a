package permit

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/holiman/uint256"
	"github.com/lightningnetwork/lnd/tlv"
)

// Encoding selects how the permit tuple is serialized before hashing.
type Encoding uint8

const (
	// EncodingLegacy joins the fields as token:owner:spender:amount. This
	// is what the permit verifier on the contract ledger recomputes, but
	// fields that contain a colon can collide.
	EncodingLegacy Encoding = iota

	// EncodingTLV serializes every field as a type-length-value record so
	// that distinct tuples can never produce the same preimage.
	EncodingTLV
)

// String returns a human readable name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingLegacy:
		return "legacy"

	case EncodingTLV:
		return "tlv"

	default:
		return fmt.Sprintf("Encoding(%d)", e)
	}
}

// ParseEncoding parses the textual name of an encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "legacy":
		return EncodingLegacy, nil

	case "tlv":
		return EncodingTLV, nil

	default:
		return 0, fmt.Errorf("unknown permit encoding: %v", s)
	}
}

// TLV record types of the permit tuple.
const (
	tokenType   tlv.Type = 1
	ownerType   tlv.Type = 2
	spenderType tlv.Type = 3
	amountType  tlv.Type = 4
)

var (
	// ErrMissingField is returned when one of the permit fields is empty.
	ErrMissingField = errors.New("permit field missing")

	// ErrNonPositiveAmount is returned when the permitted amount is zero.
	ErrNonPositiveAmount = errors.New("permit amount must be positive")
)

// Permit authorizes a spender to move an exact amount of a token on behalf of
// its owner without a prior approval transaction. Replay protection of a
// consumed permit is enforced on-chain.
type Permit struct {
	// Token is the identifier of the token contract.
	Token string

	// Owner is the address of the token owner (the maker).
	Owner string

	// Spender is the address allowed to move the tokens, usually the
	// relayer contract.
	Spender string

	// Amount is the exact amount the spender may move.
	Amount *uint256.Int
}

// Validate checks that all fields of the permit are populated.
func (p *Permit) Validate() error {
	switch {
	case p.Token == "":
		return fmt.Errorf("%w: token", ErrMissingField)

	case p.Owner == "":
		return fmt.Errorf("%w: owner", ErrMissingField)

	case p.Spender == "":
		return fmt.Errorf("%w: spender", ErrMissingField)

	case p.Amount == nil || p.Amount.IsZero():
		return ErrNonPositiveAmount
	}

	return nil
}

// Digest returns the digest of the permit in the given encoding.
func (p *Permit) Digest(encoding Encoding) (hashlock.Hash, error) {
	if err := p.Validate(); err != nil {
		return hashlock.ZeroHash, err
	}

	switch encoding {
	case EncodingLegacy:
		return BuildPermitDigest(
			p.Token, p.Owner, p.Spender, p.Amount,
		), nil

	case EncodingTLV:
		return BuildPermitDigestTLV(
			p.Token, p.Owner, p.Spender, p.Amount,
		)

	default:
		return hashlock.ZeroHash, fmt.Errorf("unknown encoding %v",
			encoding)
	}
}

// BuildPermitDigest returns sha256(token:owner:spender:amount) with the amount
// in decimal notation.
func BuildPermitDigest(token, owner, spender string,
	amount *uint256.Int) hashlock.Hash {

	message := fmt.Sprintf("%s:%s:%s:%s", token, owner, spender,
		amount.Dec())

	return hashlock.Hash(sha256.Sum256([]byte(message)))
}

// BuildPermitDigestTLV returns the sha256 digest of the TLV serialization of
// the permit tuple.
func BuildPermitDigestTLV(token, owner, spender string,
	amount *uint256.Int) (hashlock.Hash, error) {

	var (
		tokenBytes   = []byte(token)
		ownerBytes   = []byte(owner)
		spenderBytes = []byte(spender)
		amountBytes  = amount.Bytes32()
	)

	stream, err := tlv.NewStream(
		tlv.MakePrimitiveRecord(tokenType, &tokenBytes),
		tlv.MakePrimitiveRecord(ownerType, &ownerBytes),
		tlv.MakePrimitiveRecord(spenderType, &spenderBytes),
		tlv.MakePrimitiveRecord(amountType, &amountBytes),
	)
	if err != nil {
		return hashlock.ZeroHash, err
	}

	var b bytes.Buffer
	if err := stream.Encode(&b); err != nil {
		return hashlock.ZeroHash, err
	}

	return hashlock.Hash(sha256.Sum256(b.Bytes())), nil
}
