package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vietddude/blessbot/internal/core/domain"
	"github.com/vietddude/blessbot/internal/infra/chain/evm"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

type resolveRequest struct {
	Handle string `json:"handle"`
}

type resolveResponse struct {
	Address *string `json:"address"`
}

type feeRequest struct {
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type feeResponse struct {
	GasEstimate string `json:"gas_estimate"`
	TotalCost   string `json:"total_cost"`
}

type transferLogRequest struct {
	Hash    string `json:"hash"`
	From    string `json:"from_addr"`
	To      string `json:"to"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
	Memo    string `json:"memo"`
	ChainID int64  `json:"chain_id"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type activityItem struct {
	Hash   string `json:"hash"`
	From   string `json:"from"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	TS     int64  `json:"ts"`
}

// Resolve returns the wallet bound to a handle, or null.
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || domain.NormalizeHandle(req.Handle) == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	b, err := s.bindings.GetBinding(r.Context(), req.Handle)
	if err != nil {
		s.log.Error("Failed to resolve handle", "handle", req.Handle, "error", err)
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	var resp resolveResponse
	if b != nil {
		resp.Address = &b.WalletAddress
	}
	writeJSON(w, http.StatusOK, resp)
}

// FeeEstimate quotes the network fee of a token or ETH transfer.
func (s *Server) FeeEstimate(w http.ResponseWriter, r *http.Request) {
	if s.fees == nil {
		writeError(w, http.StatusServiceUnavailable, "chain not configured")
		return
	}

	var req feeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "invalid recipient")
		return
	}

	var (
		fee *evm.FeeEstimate
		err error
	)
	switch token := strings.ToUpper(strings.TrimSpace(req.Token)); {
	case token == "ETH":
		fee, err = s.fees.EstimateNativeFee(r.Context())
	case token == "" || token == strings.ToUpper(s.fees.Token().Symbol):
		amount, perr := decimal.NewFromString(req.Amount)
		if perr != nil || amount.IsNegative() {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		fee, err = s.fees.EstimateFee(r.Context(), req.To, amount)
	default:
		writeError(w, http.StatusBadRequest, "unsupported token")
		return
	}
	if err != nil {
		s.log.Error("Fee estimate failed", "error", err)
		writeError(w, http.StatusBadGateway, "estimate failed")
		return
	}

	writeJSON(w, http.StatusOK, feeResponse{
		GasEstimate: strconv.FormatUint(fee.Gas, 10),
		TotalCost:   evm.UintToTokens(fee.TotalCost, 18).String(),
	})
}

// LogTransfer records a transfer made from the frontend. Re-logging a hash
// replaces the entry.
func (s *Server) LogTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Hash) == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ChainID == 0 {
		req.ChainID = DefaultChainID
	}

	entry := &domain.TransferLogEntry{
		Hash:    strings.TrimSpace(req.Hash),
		From:    req.From,
		To:      req.To,
		Token:   req.Token,
		Amount:  req.Amount,
		Memo:    req.Memo,
		ChainID: req.ChainID,
		Time:    s.now(),
	}
	if err := s.transfers.Upsert(r.Context(), entry); err != nil {
		s.log.Error("Failed to log transfer", "hash", entry.Hash, "error", err)
		writeError(w, http.StatusInternalServerError, "store failed")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HasTransfer reports whether a hash was logged.
func (s *Server) HasTransfer(w http.ResponseWriter, r *http.Request) {
	ok, err := s.transfers.Exists(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: ok})
}

// Activity lists the newest logged transfers.
func (s *Server) Activity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxActivityLimit)
	}

	entries, err := s.transfers.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	items := make([]activityItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, activityItem{
			Hash:   e.Hash,
			From:   e.From,
			To:     e.To,
			Token:  e.Token,
			Amount: e.Amount,
			TS:     e.Time.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
