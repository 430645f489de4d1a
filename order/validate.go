package order

import (
	"fmt"

	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
)

// validateTerms checks that all required fields of the terms are present and
// the amounts are positive.
func validateTerms(t *Terms) error {
	switch {
	case t.Maker == "":
		return newInvalidOrderError("maker", "missing")

	case t.SourceChain == "":
		return newInvalidOrderError("source chain", "missing")

	case t.DestinationChain == "":
		return newInvalidOrderError("destination chain", "missing")

	case t.SourceChain == t.DestinationChain:
		return newInvalidOrderError(
			"destination chain", "must differ from source chain",
		)

	case t.SourceToken == "":
		return newInvalidOrderError("source token", "missing")

	case t.DestinationToken == "":
		return newInvalidOrderError("destination token", "missing")

	case t.SourceAmount == nil || t.SourceAmount.IsZero():
		return newInvalidOrderError("source amount", "must be positive")

	case t.DestinationAmount == nil || t.DestinationAmount.IsZero():
		return newInvalidOrderError(
			"destination amount", "must be positive",
		)

	case hashlock.IsZero(t.HashLock):
		return newInvalidOrderError("secret hash", "missing")

	case len(t.Signature) == 0:
		return newInvalidOrderError("signature", "missing")
	}

	return nil
}

// verifyPermit checks the maker's permit signature over the source amount.
// Orders without a maker key are accepted as is.
func verifyPermit(cfg *Config, t *Terms) error {
	if len(t.MakerPubKey) == 0 {
		return nil
	}

	p := &permit.Permit{
		Token:   t.SourceToken,
		Owner:   t.Maker,
		Spender: cfg.PermitSpender,
		Amount:  t.SourceAmount,
	}
	digest, err := p.Digest(cfg.PermitEncoding)
	if err != nil {
		return newInvalidOrderError("signature", "%v", err)
	}

	if !permit.VerifyPermit(
		t.SignatureScheme, t.MakerPubKey, digest, t.Signature,
	) {

		return newInvalidOrderError(
			"signature", "invalid %v permit signature",
			t.SignatureScheme,
		)
	}

	return nil
}

// crossValidate checks that both funded escrows agree with the terms of the
// order.
func crossValidate(s *swap) error {
	o := s.order

	src, ok := s.escrows[escrow.SideSource]
	if !ok {
		return fmt.Errorf("source escrow missing")
	}
	dst, ok := s.escrows[escrow.SideDestination]
	if !ok {
		return fmt.Errorf("destination escrow missing")
	}

	required := o.RequiredDestinationAmount()

	switch {
	case src.Chain != o.SourceChain:
		return fmt.Errorf("source escrow on chain %v, expected %v",
			src.Chain, o.SourceChain)

	case dst.Chain != o.DestinationChain:
		return fmt.Errorf("destination escrow on chain %v, expected %v",
			dst.Chain, o.DestinationChain)

	case src.Token != o.SourceToken:
		return fmt.Errorf("source escrow locks %v, expected %v",
			src.Token, o.SourceToken)

	case dst.Token != o.DestinationToken:
		return fmt.Errorf("destination escrow locks %v, expected %v",
			dst.Token, o.DestinationToken)

	case !src.Amount.Eq(o.SourceAmount):
		return fmt.Errorf("source escrow amount %v, expected %v",
			src.Amount.Dec(), o.SourceAmount.Dec())

	case dst.Amount.Lt(required):
		return fmt.Errorf("destination escrow amount %v below %v",
			dst.Amount.Dec(), required.Dec())

	case !hashlock.Equal(src.HashLock, o.HashLock):
		return fmt.Errorf("source escrow hash lock %v, expected %v",
			src.HashLock, o.HashLock)

	case !hashlock.Equal(dst.HashLock, o.HashLock):
		return fmt.Errorf("destination escrow hash lock %v, expected %v",
			dst.HashLock, o.HashLock)

	case src.Caller != o.Resolver || dst.Caller != o.Resolver:
		return fmt.Errorf("escrow callers %v/%v, expected resolver %v",
			src.Caller, dst.Caller, o.Resolver)

	case src.Beneficiary != o.Resolver:
		return fmt.Errorf("source escrow pays %v, expected resolver %v",
			src.Beneficiary, o.Resolver)

	case dst.Beneficiary != o.Receiver:
		return fmt.Errorf("destination escrow pays %v, expected "+
			"maker %v", dst.Beneficiary, o.Receiver)

	case src.Depositor != "" && src.Depositor != o.Maker:
		return fmt.Errorf("source escrow refunds %v, expected maker %v",
			src.Depositor, o.Maker)

	case !dst.Timeout.Before(src.Timeout):
		return fmt.Errorf("destination timeout %v not before source "+
			"timeout %v", dst.Timeout, src.Timeout)
	}

	return nil
}
