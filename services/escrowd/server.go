package escrowd

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sahilgill24/x3Fusion/native/auction"
	"github.com/Sahilgill24/x3Fusion/native/htlc"
	"github.com/Sahilgill24/x3Fusion/observability"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP front-end translating the single-shot JSON call surface
// into typed engine and pricer calls.
type Server struct {
	provisioner *Provisioner
	engine      *htlc.Engine
	pricer      *auction.Pricer
	ledger      *auction.Ledger
	log         *slog.Logger
}

// NewServer wires the service handlers. The ledger may be nil when the
// persistent fill extension is disabled.
func NewServer(provisioner *Provisioner, engine *htlc.Engine, pricer *auction.Pricer, ledger *auction.Ledger, logger *slog.Logger) *Server {
	if provisioner == nil {
		panic("provisioner required")
	}
	if engine == nil {
		panic("escrow engine required")
	}
	if pricer == nil {
		panic("auction pricer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		provisioner: provisioner,
		engine:      engine,
		pricer:      pricer,
		ledger:      ledger,
		log:         logger.With(slog.String("component", "escrowd")),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/escrows", s.handleCreate)
		v1.Get("/escrows/{id}", s.handleGet)
		v1.Post("/escrows/{id}/withdraw", s.handleWithdraw)
		v1.Post("/escrows/{id}/public-withdraw", s.handlePublicWithdraw)
		v1.Post("/escrows/{id}/cancel", s.handleCancel)
		v1.Post("/escrows/{id}/emergency-refund", s.handleEmergencyRefund)
		v1.Post("/auction/price", s.handlePrice)
		v1.Post("/auction/fill", s.handleFill)
		v1.Get("/auction/orders/{hash}/filled", s.handleFilled)
	})
	return r
}

// --- request/response payloads ---

type createEscrowRequest struct {
	OrderHash          string `json:"orderHash"`
	Hashlock           string `json:"hashlock"`
	Maker              string `json:"maker"`
	TakerAddress       string `json:"takerAddress"`
	Amount             string `json:"amount"`
	SafetyDeposit      string `json:"safetyDeposit"`
	WithdrawalAt       int64  `json:"withdrawalAt"`
	PublicWithdrawalAt int64  `json:"publicWithdrawalAt,omitempty"`
	CancellationAt     int64  `json:"cancellationAt"`
	Depositor          string `json:"depositor"`
	AttachedValue      string `json:"attachedValue"`
}

type secretRequest struct {
	Secret string `json:"secret"`
}

type callerRequest struct {
	Caller string `json:"caller"`
}

type timelocksResponse struct {
	WithdrawalAt       int64  `json:"withdrawalAt"`
	PublicWithdrawalAt int64  `json:"publicWithdrawalAt,omitempty"`
	CancellationAt     int64  `json:"cancellationAt"`
	EmergencyAt        int64  `json:"emergencyAt"`
	CreatedAt          int64  `json:"createdAt"`
	Status             string `json:"status"`
}

type escrowResponse struct {
	ID              string            `json:"id"`
	OrderHash       string            `json:"orderHash"`
	Hashlock        string            `json:"hashlock"`
	Maker           string            `json:"maker"`
	TakerAddress    string            `json:"takerAddress"`
	Amount          string            `json:"amount"`
	SafetyDeposit   string            `json:"safetyDeposit"`
	TotalRequired   string            `json:"totalRequired"`
	DepositedAmount string            `json:"depositedAmount"`
	Depositor       string            `json:"depositor"`
	IsWithdrawn     bool              `json:"isWithdrawn"`
	IsCancelled     bool              `json:"isCancelled"`
	IsActive        bool              `json:"isActive"`
	Status          string            `json:"status"`
	RevealedSecret  string            `json:"revealedSecret,omitempty"`
	Timelocks       timelocksResponse `json:"timelocks"`
}

type auctionParamsRequest struct {
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
	StartPrice string `json:"startPrice"`
	EndPrice   string `json:"endPrice"`
}

type orderRequest struct {
	Salt         uint64 `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver,omitempty"`
	MakerAsset   string `json:"makerAsset"`
	MakingAmount string `json:"makingAmount"`
	FilledAmount string `json:"filledAmount"`
}

type priceRequest struct {
	Order  orderRequest         `json:"order"`
	Params auctionParamsRequest `json:"params"`
}

type fillRequest struct {
	Order          orderRequest         `json:"order"`
	Params         auctionParamsRequest `json:"params"`
	OffchainAmount string               `json:"offchainAmount"`
}

type priceInfoResponse struct {
	CurrentPrice       string `json:"currentPrice"`
	OrderHash          string `json:"orderHash"`
	TimeElapsedPercent int64  `json:"timeElapsedPercent"`
	IsActive           bool   `json:"isActive"`
}

type fillResponse struct {
	OrderHash   string `json:"orderHash"`
	Amount      string `json:"amount"`
	Price       string `json:"price"`
	FilledTotal string `json:"filledTotal"`
	Timestamp   int64  `json:"timestamp"`
}

// --- handlers ---

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEscrowRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "create", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	safetyDeposit, err := parseOptionalAmount("safetyDeposit", req.SafetyDeposit)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	attached, err := parseAmount("attachedValue", req.AttachedValue)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	params := htlc.CreateParams{
		OrderHash:          req.OrderHash,
		Hashlock:           req.Hashlock,
		Maker:              req.Maker,
		TakerAddress:       req.TakerAddress,
		Amount:             amount,
		SafetyDeposit:      safetyDeposit,
		WithdrawalAt:       req.WithdrawalAt,
		PublicWithdrawalAt: req.PublicWithdrawalAt,
		CancellationAt:     req.CancellationAt,
	}
	esc, err := s.provisioner.Provision(params, req.Depositor, attached)
	if err != nil {
		s.writeError(w, "create", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, escrowToResponse(esc))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "get", err)
		return
	}
	esc, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, "get", err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowToResponse(esc))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	defer s.observe("withdraw")()
	s.handleSecretOp(w, r, "withdraw", s.engine.Withdraw)
}

func (s *Server) handlePublicWithdraw(w http.ResponseWriter, r *http.Request) {
	defer s.observe("public_withdraw")()
	s.handleSecretOp(w, r, "public_withdraw", s.engine.PublicWithdraw)
}

func (s *Server) handleSecretOp(w http.ResponseWriter, r *http.Request, op string, fn func([32]byte, string) error) {
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	var req secretRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, op, err)
		return
	}
	if err := fn(id, req.Secret); err != nil {
		s.writeError(w, op, err)
		return
	}
	esc, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, op, err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowToResponse(esc))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	defer s.observe("cancel")()
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "cancel", err)
		return
	}
	if err := s.engine.Cancel(id); err != nil {
		s.writeError(w, "cancel", err)
		return
	}
	esc, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, "cancel", err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowToResponse(esc))
}

func (s *Server) handleEmergencyRefund(w http.ResponseWriter, r *http.Request) {
	defer s.observe("emergency_refund")()
	id, err := parseEscrowID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "emergency_refund", err)
		return
	}
	var req callerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "emergency_refund", err)
		return
	}
	if err := s.engine.EmergencyRefund(id, req.Caller); err != nil {
		s.writeError(w, "emergency_refund", err)
		return
	}
	esc, err := s.engine.Get(id)
	if err != nil {
		s.writeError(w, "emergency_refund", err)
		return
	}
	s.writeJSON(w, http.StatusOK, escrowToResponse(esc))
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "price", err)
		return
	}
	order, err := orderFromRequest(req.Order)
	if err != nil {
		s.writeError(w, "price", err)
		return
	}
	params, err := paramsFromRequest(req.Params)
	if err != nil {
		s.writeError(w, "price", err)
		return
	}
	info, err := s.pricer.GetPriceInfo(order, params)
	if err != nil {
		s.writeError(w, "price", err)
		return
	}
	s.writeJSON(w, http.StatusOK, priceInfoResponse{
		CurrentPrice:       info.CurrentPrice.String(),
		OrderHash:          info.OrderHash,
		TimeElapsedPercent: info.TimeElapsedPercent,
		IsActive:           info.IsActive,
	})
}

func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	defer s.observe("fill")()
	var req fillRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "fill", err)
		return
	}
	order, err := orderFromRequest(req.Order)
	if err != nil {
		s.writeError(w, "fill", err)
		return
	}
	params, err := paramsFromRequest(req.Params)
	if err != nil {
		s.writeError(w, "fill", err)
		return
	}
	offchain, err := parseAmount("offchainAmount", req.OffchainAmount)
	if err != nil {
		s.writeError(w, "fill", err)
		return
	}
	fill, err := s.pricer.FillOrder(order, offchain, params)
	if err != nil {
		s.writeError(w, "fill", err)
		return
	}
	observability.Metrics().FillRecorded()
	s.writeJSON(w, http.StatusOK, fillResponse{
		OrderHash:   fill.OrderHash,
		Amount:      fill.Amount.String(),
		Price:       fill.Price.String(),
		FilledTotal: fill.FilledTotal.String(),
		Timestamp:   fill.Timestamp,
	})
}

func (s *Server) handleFilled(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.writeError(w, "filled", fmt.Errorf("%w: fill ledger not enabled", htlc.ErrInputValidation))
		return
	}
	hash := strings.TrimSpace(chi.URLParam(r, "hash"))
	filled, err := s.ledger.Filled(hash)
	if err != nil {
		s.writeError(w, "filled", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"orderHash": hash,
		"filled":    filled.String(),
	})
}

// --- helpers ---

func (s *Server) observe(operation string) func() {
	start := time.Now()
	return func() {
		observability.Metrics().Operation(operation, "handled", time.Since(start))
	}
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", htlc.ErrInputValidation, err)
	}
	return nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s required", htlc.ErrInputValidation, field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative decimal string", htlc.ErrInputValidation, field)
	}
	return amount, nil
}

func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, value)
}

func parseEscrowID(raw string) ([32]byte, error) {
	var id [32]byte
	cleaned := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(cleaned)
	if err != nil || len(decoded) != 32 {
		return id, fmt.Errorf("%w: escrow id must be 32 bytes of hex", htlc.ErrInputValidation)
	}
	copy(id[:], decoded)
	return id, nil
}

func orderFromRequest(req orderRequest) (*auction.Order, error) {
	making, err := parseAmount("makingAmount", req.MakingAmount)
	if err != nil {
		return nil, err
	}
	filled, err := parseOptionalAmount("filledAmount", req.FilledAmount)
	if err != nil {
		return nil, err
	}
	return &auction.Order{
		Salt:         req.Salt,
		Maker:        req.Maker,
		Receiver:     req.Receiver,
		MakerAsset:   req.MakerAsset,
		MakingAmount: making,
		FilledAmount: filled,
	}, nil
}

func paramsFromRequest(req auctionParamsRequest) (auction.Params, error) {
	startPrice, err := parseAmount("startPrice", req.StartPrice)
	if err != nil {
		return auction.Params{}, err
	}
	endPrice, err := parseOptionalAmount("endPrice", req.EndPrice)
	if err != nil {
		return auction.Params{}, err
	}
	return auction.Params{
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		StartPrice: startPrice,
		EndPrice:   endPrice,
	}, nil
}

func escrowToResponse(esc *htlc.Escrow) escrowResponse {
	id := esc.ID()
	resp := escrowResponse{
		ID:              hex.EncodeToString(id[:]),
		OrderHash:       esc.Immutables.OrderHash,
		Hashlock:        esc.Immutables.Hashlock,
		Maker:           esc.Immutables.Maker,
		TakerAddress:    esc.Immutables.TakerAddress,
		Amount:          esc.Immutables.Amount.String(),
		SafetyDeposit:   esc.Immutables.SafetyDeposit.String(),
		TotalRequired:   esc.Immutables.TotalRequired().String(),
		DepositedAmount: esc.DepositedAmount.String(),
		Depositor:       esc.Depositor,
		IsWithdrawn:     esc.IsWithdrawn,
		IsCancelled:     esc.IsCancelled,
		IsActive:        esc.IsActive(),
		Status:          esc.Status(),
		Timelocks: timelocksResponse{
			WithdrawalAt:       esc.Timelocks.WithdrawalAt,
			PublicWithdrawalAt: esc.Timelocks.PublicWithdrawalAt,
			CancellationAt:     esc.Timelocks.CancellationAt,
			EmergencyAt:        esc.Timelocks.EmergencyAt(),
			CreatedAt:          esc.Timelocks.CreatedAt,
			Status:             esc.Timelocks.Status(),
		},
	}
	if esc.SecretRevealed {
		resp.RevealedSecret = esc.RevealedSecret
	}
	return resp
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, htlc.ErrInsufficientDeposit):
		return http.StatusPaymentRequired, "insufficient_deposit"
	case errors.Is(err, htlc.ErrTimelockNotMet):
		return http.StatusTooEarly, "timelock_not_met"
	case errors.Is(err, htlc.ErrAlreadyFinalized):
		return http.StatusConflict, "already_finalized"
	case errors.Is(err, htlc.ErrInvalidSecret):
		return http.StatusForbidden, "invalid_secret"
	case errors.Is(err, htlc.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, htlc.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, htlc.ErrAuctionExpired):
		return http.StatusGone, "auction_expired"
	case errors.Is(err, htlc.ErrTimelockValidation):
		return http.StatusBadRequest, "timelock_validation"
	case errors.Is(err, htlc.ErrInputValidation):
		return http.StatusBadRequest, "input_validation"
	case errors.Is(err, htlc.ErrArithmetic):
		return http.StatusInternalServerError, "arithmetic"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("operation failed", slog.String("operation", op), slog.String("error", err.Error()))
	} else {
		s.log.Info("operation rejected", slog.String("operation", op), slog.String("kind", kind), slog.String("reason", err.Error()))
	}
	s.writeJSON(w, status, errorEnvelope{Error: errorBody{Kind: kind, Message: err.Error()}})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("encode response", slog.String("error", err.Error()))
	}
}
