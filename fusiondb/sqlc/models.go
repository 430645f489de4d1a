package sqlc

import (
	"time"
)

type Escrow struct {
	ID           string
	OrderID      string
	Side         int32
	Chain        string
	Address      string
	Token        string
	Amount       string
	HashLock     []byte
	TimeoutAt    time.Time
	Caller       string
	Beneficiary  string
	Depositor    string
	State        string
	FundedAmount string
	Secret       []byte
	ClosedBy     string
	DeployedAt   time.Time
	UpdatedAt    time.Time
}

type Order struct {
	ID                     string
	Maker                  string
	SourceChain            string
	DestinationChain       string
	SourceToken            string
	DestinationToken       string
	SourceAmount           string
	DestinationAmount      string
	Signature              string
	SignatureScheme        string
	MakerPubkey            []byte
	SecretHash             []byte
	OrderTimestamp         time.Time
	Status                 string
	Resolver               string
	Price                  string
	Secret                 []byte
	SecretSharedToResolver bool
	SecretSharedToNetwork  bool
	FinalityDepth          int32
	CreatedAt              time.Time
	UpdatedAt              time.Time
	ExpiresAt              time.Time
	Version                int64
	Receiver               string
}

type OrderUpdate struct {
	ID              int64
	OrderID         string
	UpdateTimestamp time.Time
	PreviousStatus  string
	Status          string
	Event           string
}

type Solver struct {
	WalletAddress string
	WebhookUrl    string
	RegisteredAt  time.Time
}
