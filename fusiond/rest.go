package fusiond

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Anmol-Dhiman/stellar-fusionX/auction"
	"github.com/Anmol-Dhiman/stellar-fusionX/chain"
	"github.com/Anmol-Dhiman/stellar-fusionX/escrow"
	"github.com/Anmol-Dhiman/stellar-fusionX/hashlock"
	"github.com/Anmol-Dhiman/stellar-fusionX/order"
	"github.com/Anmol-Dhiman/stellar-fusionX/permit"
	"github.com/Anmol-Dhiman/stellar-fusionX/solvers"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("bad request")

// SubmitOrderRequest is the body of POST /orders.
type SubmitOrderRequest struct {
	Maker             string `json:"maker"`
	Receiver          string `json:"receiver,omitempty"`
	SourceChain       string `json:"sourceChain"`
	DestinationChain  string `json:"destinationChain"`
	SourceToken       string `json:"sourceToken"`
	DestinationToken  string `json:"destinationToken"`
	SourceAmount      string `json:"sourceAmount"`
	DestinationAmount string `json:"destinationAmount"`
	SecretHash        string `json:"secretHash"`
	Signature         string `json:"signature"`
	SignatureScheme   string `json:"signatureScheme,omitempty"`
	MakerPubKey       string `json:"makerPubKey,omitempty"`
	Timestamp         int64  `json:"timestamp,omitempty"`
}

// AcceptRequest is the body of POST /orders/{id}/accept.
type AcceptRequest struct {
	Resolver string `json:"resolver"`
	Price    string `json:"price,omitempty"`
}

// FillRequest is the body of POST /orders/{id}/fill.
type FillRequest struct {
	Resolver string `json:"resolver"`
}

// FillResponse is returned for auction fills.
type FillResponse struct {
	OrderID   string `json:"orderId"`
	Resolver  string `json:"resolver"`
	AmountOut string `json:"amountOut"`
	FilledAt  int64  `json:"filledAt"`
}

// EscrowRequest is the body of POST /orders/{id}/escrows. Without deployment
// parameters the escrow is read from the chain adapter.
type EscrowRequest struct {
	Side         string `json:"side"`
	Address      string `json:"address"`
	Chain        string `json:"chain,omitempty"`
	Token        string `json:"token,omitempty"`
	Amount       string `json:"amount,omitempty"`
	HashLock     string `json:"hashLock,omitempty"`
	Timeout      int64  `json:"timeout,omitempty"`
	Caller       string `json:"caller,omitempty"`
	Beneficiary  string `json:"beneficiary,omitempty"`
	Depositor    string `json:"depositor,omitempty"`
	FundedAmount string `json:"fundedAmount,omitempty"`
	FundedToken  string `json:"fundedToken,omitempty"`
}

// FinalityRequest is the body of POST /orders/{id}/finality.
type FinalityRequest struct {
	Depth uint32 `json:"depth"`
}

// RevealRequest is the body of POST /secrets.
type RevealRequest struct {
	OrderID string `json:"orderId"`
	Secret  string `json:"secret"`
}

// RegisterSolverRequest is the body of POST /solvers.
type RegisterSolverRequest struct {
	WalletAddress string `json:"walletAddress"`
	WebhookURL    string `json:"webhookUrl"`
}

// SolverResponse is the json representation of a solver.
type SolverResponse struct {
	WalletAddress string `json:"walletAddress"`
	WebhookURL    string `json:"webhookUrl"`
	RegisteredAt  int64  `json:"registeredAt"`
}

// UpdateResponse is the json representation of an order update.
type UpdateResponse struct {
	PreviousStatus string `json:"previousStatus"`
	Status         string `json:"status"`
	Event          string `json:"event"`
	Timestamp      int64  `json:"timestamp"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// restServer exposes the coordinator over http.
type restServer struct {
	daemon *Daemon
	mux    *http.ServeMux
}

func newRESTServer(d *Daemon) *restServer {
	s := &restServer{
		daemon: d,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /orders", s.submitOrder)
	s.mux.HandleFunc("GET /orders", s.listOrders)
	s.mux.HandleFunc("GET /orders/{id}", s.getOrder)
	s.mux.HandleFunc("GET /orders/{id}/updates", s.getOrderUpdates)
	s.mux.HandleFunc("POST /orders/{id}/accept", s.acceptOrder)
	s.mux.HandleFunc("POST /orders/{id}/fill", s.fillOrder)
	s.mux.HandleFunc("POST /orders/{id}/escrows", s.recordEscrow)
	s.mux.HandleFunc("POST /orders/{id}/finality", s.confirmFinality)
	s.mux.HandleFunc("POST /orders/{id}/complete", s.completeOrder)
	s.mux.HandleFunc("POST /orders/{id}/cancel", s.cancelOrder)
	s.mux.HandleFunc("POST /secrets", s.revealSecret)
	s.mux.HandleFunc("POST /solvers", s.registerSolver)
	s.mux.HandleFunc("GET /solvers", s.listSolvers)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(
		prometheus.Gatherers{d.metrics}, promhttp.HandlerOpts{},
	))

	return s
}

// Handler returns the http handler of the server.
func (s *restServer) Handler() http.Handler {
	return s.mux
}

func (s *restServer) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if !decode(w, r, &req) {
		return
	}

	terms, err := parseTerms(&req)
	if err != nil {
		writeError(w, err)
		return
	}

	o, err := s.daemon.manager.Submit(r.Context(), terms)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, order.NewPayload(o, nil))
}

func (s *restServer) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.daemon.manager.ListOrders(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	payloads := make([]*order.Payload, 0, len(orders))
	for _, o := range orders {
		payloads = append(payloads, order.NewPayload(o, nil))
	}

	writeJSON(w, http.StatusOK, payloads)
}

func (s *restServer) getOrder(w http.ResponseWriter, r *http.Request) {
	p, err := s.daemon.manager.GetPayload(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (s *restServer) getOrderUpdates(w http.ResponseWriter,
	r *http.Request) {

	id := r.PathValue("id")

	// Make sure unknown orders are reported as such.
	if _, err := s.daemon.manager.GetOrder(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	updates, err := s.daemon.manager.GetOrderUpdates(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*UpdateResponse, 0, len(updates))
	for _, u := range updates {
		resp = append(resp, &UpdateResponse{
			PreviousStatus: string(u.PreviousStatus),
			Status:         string(u.Status),
			Event:          string(u.Event),
			Timestamp:      u.Timestamp.Unix(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *restServer) acceptOrder(w http.ResponseWriter, r *http.Request) {
	var req AcceptRequest
	if !decode(w, r, &req) {
		return
	}

	var price *uint256.Int
	if req.Price != "" {
		var err error
		price, err = parseAmount("price", req.Price)
		if err != nil {
			writeError(w, err)
			return
		}
	}

	o, err := s.daemon.manager.Accept(
		r.Context(), r.PathValue("id"), req.Resolver, price,
	)
	s.writeOrder(w, r, o, err)
}

func (s *restServer) fillOrder(w http.ResponseWriter, r *http.Request) {
	if s.daemon.book == nil {
		writeError(w, fmt.Errorf("%w: auctions disabled",
			auction.ErrAuctionNotFound))
		return
	}

	var req FillRequest
	if !decode(w, r, &req) {
		return
	}

	fill, err := s.daemon.book.Fill(
		r.Context(), r.PathValue("id"), req.Resolver,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, &FillResponse{
		OrderID:   fill.OrderID,
		Resolver:  fill.Resolver,
		AmountOut: fill.AmountOut.Dec(),
		FilledAt:  fill.FilledAt.Unix(),
	})
}

func (s *restServer) recordEscrow(w http.ResponseWriter, r *http.Request) {
	var req EscrowRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	id := r.PathValue("id")

	side, err := escrow.ParseSide(req.Side)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	// Without deployment parameters the chain is the source of truth.
	if req.Amount == "" {
		o, err := s.daemon.manager.ObserveEscrow(
			ctx, id, side, req.Address,
		)
		s.writeOrder(w, r, o, err)

		return
	}

	params, err := parseEscrowParams(id, side, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	// The escrow is assumed to carry the hash lock of the order unless
	// the caller observed a different one.
	if params.HashLock == nil {
		existing, err := s.daemon.manager.GetOrder(ctx, id)
		if err != nil {
			writeError(w, err)
			return
		}
		params.HashLock = existing.HashLock[:]
	}

	o, err := s.daemon.manager.RecordEscrowDeployed(ctx, params)
	if err != nil || req.FundedAmount == "" {
		s.writeOrder(w, r, o, err)
		return
	}

	funded, err := parseAmount("funded amount", req.FundedAmount)
	if err != nil {
		writeError(w, err)
		return
	}

	token := req.FundedToken
	if token == "" {
		token = params.Token
	}

	o, err = s.daemon.manager.RecordEscrowFunded(
		ctx, id, side, funded, token,
	)
	s.writeOrder(w, r, o, err)
}

func (s *restServer) confirmFinality(w http.ResponseWriter,
	r *http.Request) {

	var req FinalityRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := s.daemon.manager.ConfirmFinality(
		r.Context(), r.PathValue("id"), req.Depth,
	)
	s.writeOrder(w, r, o, err)
}

func (s *restServer) completeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.daemon.manager.MarkCompleted(r.Context(), r.PathValue("id"))
	s.writeOrder(w, r, o, err)
}

func (s *restServer) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.daemon.manager.MarkCancelled(r.Context(), r.PathValue("id"))
	s.writeOrder(w, r, o, err)
}

func (s *restServer) revealSecret(w http.ResponseWriter, r *http.Request) {
	var req RevealRequest
	if !decode(w, r, &req) {
		return
	}

	secret, err := hashlock.ParseSecret(req.Secret)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	o, err := s.daemon.manager.RevealSecret(r.Context(), req.OrderID, secret)
	s.writeOrder(w, r, o, err)
}

func (s *restServer) registerSolver(w http.ResponseWriter,
	r *http.Request) {

	var req RegisterSolverRequest
	if !decode(w, r, &req) {
		return
	}

	solver, err := s.daemon.registry.Register(
		r.Context(), req.WalletAddress, req.WebhookURL,
	)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, solverResponse(solver))
}

func (s *restServer) listSolvers(w http.ResponseWriter, r *http.Request) {
	all, err := s.daemon.registry.ListSolvers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]*SolverResponse, 0, len(all))
	for _, solver := range all {
		resp = append(resp, solverResponse(solver))
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeOrder responds with the full payload of the order.
func (s *restServer) writeOrder(w http.ResponseWriter, r *http.Request,
	o *order.Order, err error) {

	if err != nil {
		writeError(w, err)
		return
	}

	p, err := s.daemon.manager.GetPayload(r.Context(), o.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func solverResponse(s *solvers.Solver) *SolverResponse {
	return &SolverResponse{
		WalletAddress: s.WalletAddress,
		WebhookURL:    s.WebhookURL,
		RegisteredAt:  s.RegisteredAt.Unix(),
	}
}

func parseTerms(req *SubmitOrderRequest) (*order.Terms, error) {
	srcAmount, err := parseAmount("source amount", req.SourceAmount)
	if err != nil {
		return nil, err
	}
	dstAmount, err := parseAmount(
		"destination amount", req.DestinationAmount,
	)
	if err != nil {
		return nil, err
	}

	hash, err := hashlock.ParseHash(req.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("%w: secret hash: %w", errBadRequest,
			err)
	}

	sig, err := decodeHex(req.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", errBadRequest, err)
	}

	terms := &order.Terms{
		Maker:             req.Maker,
		Receiver:          req.Receiver,
		SourceChain:       req.SourceChain,
		DestinationChain:  req.DestinationChain,
		SourceToken:       req.SourceToken,
		DestinationToken:  req.DestinationToken,
		SourceAmount:      srcAmount,
		DestinationAmount: dstAmount,
		HashLock:          hash,
		Signature:         sig,
	}

	if req.Timestamp != 0 {
		terms.Timestamp = time.Unix(req.Timestamp, 0)
	}

	if req.MakerPubKey != "" {
		terms.SignatureScheme, err = permit.ParseScheme(
			req.SignatureScheme,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}

		terms.MakerPubKey, err = decodeHex(req.MakerPubKey)
		if err != nil {
			return nil, fmt.Errorf("%w: maker pubkey: %w",
				errBadRequest, err)
		}
	}

	return terms, nil
}

func parseEscrowParams(orderID string, side escrow.Side,
	req *EscrowRequest) (*escrow.Params, error) {

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	params := &escrow.Params{
		OrderID:     orderID,
		Side:        side,
		Chain:       req.Chain,
		Address:     req.Address,
		Token:       req.Token,
		Amount:      amount,
		Caller:      req.Caller,
		Beneficiary: req.Beneficiary,
		Depositor:   req.Depositor,
	}

	if req.Timeout != 0 {
		params.Timeout = time.Unix(req.Timeout, 0)
	}

	if req.HashLock != "" {
		hash, err := hashlock.ParseHash(req.HashLock)
		if err != nil {
			return nil, fmt.Errorf("%w: hash lock: %w",
				errBadRequest, err)
		}
		params.HashLock = hash[:]
	}

	return params, nil
}

func parseAmount(field, s string) (*uint256.Int, error) {
	amount, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", errBadRequest, field, err)
	}

	return amount, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")

	return hex.DecodeString(s)
}

// decode reads the json body into v and reports malformed bodies.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("Unable to write response: %v", err)
	}
}

// errorKinds maps error kinds to their status code and name. The first
// match wins.
var errorKinds = []struct {
	err    error
	status int
	name   string
}{
	{errBadRequest, http.StatusBadRequest, "bad-request"},
	{order.ErrInvalidOrder, http.StatusBadRequest, "invalid-order"},
	{escrow.ErrValidation, http.StatusBadRequest, "validation"},
	{solvers.ErrInvalidSolver, http.StatusBadRequest, "invalid-solver"},
	{order.ErrOrderNotFound, http.StatusNotFound, "not-found"},
	{solvers.ErrSolverNotFound, http.StatusNotFound, "not-found"},
	{auction.ErrAuctionNotFound, http.StatusNotFound, "not-found"},
	{chain.ErrEscrowNotFound, http.StatusNotFound, "not-found"},
	{chain.ErrUnknownChain, http.StatusBadRequest, "unknown-chain"},
	{order.ErrAlreadyAccepted, http.StatusConflict, "already-accepted"},
	{order.ErrSecretConflict, http.StatusConflict, "secret-conflict"},
	{order.ErrSecretMismatch, http.StatusUnprocessableEntity,
		"secret-mismatch"},
	{order.ErrPrematureFinality, http.StatusTooEarly,
		"premature-finality"},
	{auction.ErrAuctionNotStarted, http.StatusTooEarly,
		"auction-not-started"},
	{escrow.ErrTimelockActive, http.StatusTooEarly, "timelock-active"},
	{escrow.ErrTimelockExpired, http.StatusConflict, "timelock-expired"},
	{order.ErrUnderfunded, http.StatusUnprocessableEntity, "underfunded"},
	{escrow.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
	{order.ErrInvalidState, http.StatusConflict, "invalid-state"},
	{escrow.ErrInvalidState, http.StatusConflict, "invalid-state"},
	{chain.ErrTxRejected, http.StatusConflict, "tx-rejected"},
	{solvers.ErrDuplicateWebhook, http.StatusConflict, "duplicate-webhook"},
	{solvers.ErrAlreadyRegistered, http.StatusConflict,
		"already-registered"},
	{auction.ErrAuctionExists, http.StatusConflict, "auction-exists"},
}

func writeError(w http.ResponseWriter, err error) {
	for _, kind := range errorKinds {
		if errors.Is(err, kind.err) {
			writeJSON(w, kind.status, &ErrorResponse{
				Error:   kind.name,
				Message: err.Error(),
			})

			return
		}
	}

	log.Errorf("Request failed: %v", err)

	writeJSON(w, http.StatusInternalServerError, &ErrorResponse{
		Error:   "internal",
		Message: "internal error",
	})
}
