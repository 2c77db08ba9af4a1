package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bondingCurve/internal/curve"
	"bondingCurve/internal/fixedpoint"
	"bondingCurve/internal/model"
	"bondingCurve/internal/pool"
	"bondingCurve/internal/settlement"
)

type handlers struct {
	svc    Service
	logger *zap.Logger
}

// poolView adds the current spot price to a pool snapshot.
type poolView struct {
	model.Pool
	SpotPrice fixedpoint.Value `json:"spot_price"`
}

type tradeBody struct {
	Direction      model.Direction   `json:"direction"`
	Amount         fixedpoint.Value  `json:"amount"`
	Limit          *fixedpoint.Value `json:"limit,omitempty"`
	Trader         string            `json:"trader,omitempty"`
	Payload        string            `json:"payload,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) createPool(w http.ResponseWriter, r *http.Request) {
	var req settlement.CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.svc.CreatePool(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(created))
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Pool(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.view(p))
}

func (h *handlers) view(p model.Pool) poolView {
	spot, err := curve.SpotPrice(pool.Params(p), p.Supply)
	if err != nil {
		h.logger.Warn("spot price unavailable", zap.String("pool_id", p.ID), zap.Error(err))
	}
	return poolView{Pool: p, SpotPrice: spot}
}

func (h *handlers) quote(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]
	q := r.URL.Query()

	if raw := q.Get("budget"); raw != "" {
		budget, err := fixedpoint.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid budget: "+err.Error())
			return
		}
		quote, err := h.svc.QuoteBuyWithBudget(r.Context(), poolID, budget)
		if err != nil {
			h.fail(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, quote)
		return
	}

	dir, err := model.ParseDirection(strings.ToLower(q.Get("direction")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := fixedpoint.Parse(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount: "+err.Error())
		return
	}
	quote, err := h.svc.Quote(r.Context(), poolID, dir, amount)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *handlers) submitTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	dir, err := model.ParseDirection(strings.ToLower(string(body.Direction)))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = body.IdempotencyKey
	}
	if key == "" {
		writeError(w, http.StatusBadRequest, "Idempotency-Key header is required")
		return
	}
	var payload []byte
	if body.Payload != "" {
		decoded, err := hexutil.Decode(body.Payload)
		if err != nil {
			writeError(w, http.StatusBadRequest, "payload must be 0x-prefixed hex")
			return
		}
		payload = decoded
	}

	req := model.TradeRequest{
		PoolID:    mux.Vars(r)["id"],
		Direction: dir,
		Amount:    body.Amount,
		Limit:     body.Limit,
		Trader:    body.Trader,
		Payload:   payload,
	}
	res, err := h.svc.Settle(r.Context(), req, key)
	if err != nil {
		h.fail(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) listTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if raw := q.Get("after"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after")
			return
		}
		after = n
	}
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := h.svc.Trades(r.Context(), mux.Vars(r)["id"], after, limit)
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (h *handlers) launch(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Launch(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, h.view(p))
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error, result any) {
	if !isTradeError(err) {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeFailure(w, err, result)
}
