package order

import (
	"encoding/hex"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/fsm"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/holiman/uint256"
)

// Terms are the immutable terms of an order as signed by the maker.
type Terms struct {
	// Maker is the address of the maker on the source chain.
	Maker string

	// Receiver is the address of the maker on the destination chain. It
	// defaults to Maker.
	Receiver string

	// SourceChain is the chain the maker sells on.
	SourceChain string

	// DestinationChain is the chain the maker buys on.
	DestinationChain string

	// SourceToken is the token the maker sells.
	SourceToken string

	// DestinationToken is the token the maker buys.
	DestinationToken string

	// SourceAmount is the exact amount the maker sells.
	SourceAmount *uint256.Int

	// DestinationAmount is the minimum amount the maker accepts.
	DestinationAmount *uint256.Int

	// HashLock is the hash of the maker's secret.
	HashLock hashlock.Hash

	// Signature is the maker's permit signature.
	Signature []byte

	// SignatureScheme is the scheme of MakerPubKey.
	SignatureScheme permit.Scheme

	// MakerPubKey is the raw public key of the maker. If set, the permit
	// signature is verified on submission.
	MakerPubKey []byte

	// Timestamp is the creation time chosen by the maker.
	Timestamp time.Time
}

// Order is a single cross-chain swap.
type Order struct {
	// ID is the opaque order id.
	ID string

	Terms

	// Status is the current lifecycle state.
	Status fsm.StateType

	// Resolver is the bound resolver, empty until accepted.
	Resolver string

	// Price is the destination amount the resolver accepted at.
	Price *uint256.Int

	// Secret is the revealed pre-image. It is write once.
	Secret []byte

	// SecretSharedToResolver is set once the secret was accepted for
	// propagation to the resolver.
	SecretSharedToResolver bool

	// SecretSharedToNetwork is set once the secret was delivered to at
	// least one solver in broadcast mode.
	SecretSharedToNetwork bool

	// FinalityDepth is the destination confirmation depth finality was
	// confirmed at.
	FinalityDepth uint32

	// SourceEscrow references the source escrow, empty until deployed.
	SourceEscrow escrow.ID

	// DestinationEscrow references the destination escrow, empty until
	// deployed.
	DestinationEscrow escrow.ID

	// SourceFunded is set once the source escrow got funded.
	SourceFunded bool

	// DestinationFunded is set once the destination escrow got funded.
	DestinationFunded bool

	// CreatedAt is the time the order was submitted.
	CreatedAt time.Time

	// UpdatedAt is the time of the last change.
	UpdatedAt time.Time

	// ExpiresAt is the time an order without escrows expires.
	ExpiresAt time.Time

	// Version is the persisted version the order was read at.
	Version int64
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o

	if o.SourceAmount != nil {
		c.SourceAmount = new(uint256.Int).Set(o.SourceAmount)
	}
	if o.DestinationAmount != nil {
		c.DestinationAmount = new(uint256.Int).Set(o.DestinationAmount)
	}
	if o.Price != nil {
		c.Price = new(uint256.Int).Set(o.Price)
	}
	c.Signature = cloneBytes(o.Signature)
	c.MakerPubKey = cloneBytes(o.MakerPubKey)
	c.Secret = cloneBytes(o.Secret)

	return &c
}

// EscrowRef returns the escrow reference of the side.
func (o *Order) EscrowRef(side escrow.Side) escrow.ID {
	if side == escrow.SideSource {
		return o.SourceEscrow
	}

	return o.DestinationEscrow
}

// Funded returns true if the escrow of the side got funded.
func (o *Order) Funded(side escrow.Side) bool {
	if side == escrow.SideSource {
		return o.SourceFunded
	}

	return o.DestinationFunded
}

// ChainOf returns the chain of the side.
func (o *Order) ChainOf(side escrow.Side) string {
	if side == escrow.SideSource {
		return o.SourceChain
	}

	return o.DestinationChain
}

// RequiredDestinationAmount is the least the destination escrow has to lock:
// the accepted price, or the committed destination amount before
// acceptance.
func (o *Order) RequiredDestinationAmount() *uint256.Int {
	if o.Price != nil && o.Price.Gt(o.DestinationAmount) {
		return o.Price
	}

	return o.DestinationAmount
}

// IsFinal returns true if the order reached a terminal status.
func (o *Order) IsFinal() bool {
	return IsFinalStatus(o.Status)
}

// setEscrowRefs derives the escrow references and funded flags from the
// escrows of the order.
func (o *Order) setEscrowRefs(escrows []*escrow.Escrow) {
	for _, e := range escrows {
		switch e.Side {
		case escrow.SideSource:
			o.SourceEscrow = e.ID
			o.SourceFunded = e.IsFunded()

		case escrow.SideDestination:
			o.DestinationEscrow = e.ID
			o.DestinationFunded = e.IsFunded()
		}
	}
}

// Update is a status transition in the history of an order.
type Update struct {
	// PreviousStatus is the status before the transition.
	PreviousStatus fsm.StateType

	// Status is the status after the transition.
	Status fsm.StateType

	// Event is the event that caused the transition.
	Event fsm.EventType

	// Timestamp is the time of the transition.
	Timestamp time.Time
}

// EscrowPayload is the json representation of an escrow.
type EscrowPayload struct {
	Chain        string `json:"chain"`
	Address      string `json:"address"`
	Token        string `json:"token"`
	Amount       string `json:"amount"`
	Timeout      int64  `json:"timeout"`
	Caller       string `json:"caller"`
	Beneficiary  string `json:"beneficiary"`
	State        string `json:"state"`
	FundedAmount string `json:"fundedAmount,omitempty"`
	ClosedBy     string `json:"closedBy,omitempty"`
}

// Payload is the json representation of an order shared with resolvers and
// API clients. The secret is only included once revealed.
type Payload struct {
	OrderID                string         `json:"orderId"`
	Maker                  string         `json:"maker"`
	Receiver               string         `json:"receiver"`
	SourceChain            string         `json:"sourceChain"`
	DestinationChain       string         `json:"destinationChain"`
	SourceToken            string         `json:"sourceToken"`
	DestinationToken       string         `json:"destinationToken"`
	SourceAmount           string         `json:"sourceAmount"`
	DestinationAmount      string         `json:"destinationAmount"`
	Signature              string         `json:"signature"`
	SecretHash             string         `json:"secretHash"`
	Timestamp              int64          `json:"timestamp"`
	Status                 string         `json:"status"`
	Resolver               string         `json:"resolver,omitempty"`
	Price                  string         `json:"price,omitempty"`
	Secret                 string         `json:"secret,omitempty"`
	SecretSharedToResolver bool           `json:"secretSharedToResolver"`
	SecretSharedToNetwork  bool           `json:"secretSharedToNetwork"`
	FinalityDepth          uint32         `json:"finalityDepth,omitempty"`
	ExpiresAt              int64          `json:"expiresAt"`
	SourceEscrow           *EscrowPayload `json:"sourceEscrow,omitempty"`
	DestinationEscrow      *EscrowPayload `json:"destinationEscrow,omitempty"`
}

// NewPayload returns the json representation of the order and its escrows.
func NewPayload(o *Order, escrows []*escrow.Escrow) *Payload {
	p := &Payload{
		OrderID:                o.ID,
		Maker:                  o.Maker,
		Receiver:               o.Receiver,
		SourceChain:            o.SourceChain,
		DestinationChain:       o.DestinationChain,
		SourceToken:            o.SourceToken,
		DestinationToken:       o.DestinationToken,
		SourceAmount:           o.SourceAmount.Dec(),
		DestinationAmount:      o.DestinationAmount.Dec(),
		Signature:              hex.EncodeToString(o.Signature),
		SecretHash:             o.HashLock.String(),
		Timestamp:              o.Timestamp.Unix(),
		Status:                 string(o.Status),
		Resolver:               o.Resolver,
		SecretSharedToResolver: o.SecretSharedToResolver,
		SecretSharedToNetwork:  o.SecretSharedToNetwork,
		FinalityDepth:          o.FinalityDepth,
		ExpiresAt:              o.ExpiresAt.Unix(),
	}

	if o.Price != nil {
		p.Price = o.Price.Dec()
	}
	if o.Secret != nil {
		p.Secret = hex.EncodeToString(o.Secret)
	}

	for _, e := range escrows {
		ep := &EscrowPayload{
			Chain:       e.Chain,
			Address:     e.Address,
			Token:       e.Token,
			Amount:      e.Amount.Dec(),
			Timeout:     e.Timeout.Unix(),
			Caller:      e.Caller,
			Beneficiary: e.Beneficiary,
			State:       string(e.State),
			ClosedBy:    e.ClosedBy,
		}
		if e.FundedAmount != nil {
			ep.FundedAmount = e.FundedAmount.Dec()
		}

		if e.Side == escrow.SideSource {
			p.SourceEscrow = ep
		} else {
			p.DestinationEscrow = ep
		}
	}

	return p
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append([]byte(nil), b...)
}
