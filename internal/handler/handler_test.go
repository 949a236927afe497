package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"goldledger/internal/config"
	"goldledger/internal/ledger"
	"goldledger/internal/oracle"
	"goldledger/internal/repository"
	"goldledger/internal/service"
	"goldledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	params := config.DefaultLedgerParams()
	store := repository.NewMemoryStore()
	engine := ledger.NewEngine(store, ledger.NewKeyedMutex(), ledger.WithInitialCash(params.InitialCashBalance))
	price, err := oracle.NewStatic(decimal.NewFromInt(2000))
	require.NoError(t, err)

	return SetupRouter(Services{
		Accounts:    service.NewAccountService(engine, store),
		Trades:      service.NewTradeService(engine, price, nil),
		Staking:     service.NewStakingService(engine),
		Loans:       service.NewLoanService(engine, store, params, nil),
		Redemptions: service.NewRedemptionService(engine, store, params.MinimumRedemption, nil),
		Oracle:      price,
	}, nil)
}

func do(t *testing.T, r *gin.Engine, method, path string, body interface{}) envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestHandler_Health(t *testing.T) {
	r := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestHandler_TradeStakeBorrowFlow(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodGet, "/api/v1/account/balance?user_id=7", nil)
	assert.Equal(t, response.CodeAccountNotFound, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 7, "direction": "buy", "amount_gold": "1"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = do(t, r, http.MethodPost, "/api/v1/defi/stake", gin.H{"user_id": 7, "amount": "1"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = do(t, r, http.MethodPost, "/api/v1/defi/borrow", gin.H{"user_id": 7, "principal": "500", "currency": "USDC", "term_days": 30})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)

	env = do(t, r, http.MethodPost, "/api/v1/defi/unstake", gin.H{"user_id": 7, "amount": "1"})
	assert.Equal(t, response.CodeCollateralLocked, env.Code)

	env = do(t, r, http.MethodGet, "/api/v1/account/balance?user_id=7", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	var b struct {
		CashBalance decimal.Decimal `json:"cash_balance"`
		FreeGold    decimal.Decimal `json:"free_gold"`
		StakedGold  decimal.Decimal `json:"staked_gold"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.True(t, b.CashBalance.Equal(decimal.NewFromInt(8500)))
	assert.True(t, b.FreeGold.IsZero())
	assert.True(t, b.StakedGold.Equal(decimal.NewFromInt(1)))

	env = do(t, r, http.MethodGet, "/api/v1/defi/status?user_id=7", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.Contains(t, string(env.Data), `"status":"ACTIVE"`)

	// 多付的部分不扣
	env = do(t, r, http.MethodPost, "/api/v1/defi/repay", gin.H{"user_id": 7, "amount": "800"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var repaid struct {
		Requested   decimal.Decimal `json:"requested"`
		Settled     decimal.Decimal `json:"settled"`
		Outstanding decimal.Decimal `json:"outstanding"`
		Status      string          `json:"status"`
		Balances    struct {
			CashBalance decimal.Decimal `json:"cash_balance"`
		} `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &repaid))
	assert.Equal(t, "REPAID", repaid.Status)
	assert.True(t, repaid.Requested.Equal(decimal.NewFromInt(800)))
	assert.True(t, repaid.Settled.Equal(decimal.NewFromInt(500)))
	assert.True(t, repaid.Outstanding.IsZero())
	assert.True(t, repaid.Balances.CashBalance.Equal(decimal.NewFromInt(8000)))
}

func TestHandler_InsufficientFundsCarriesField(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 1, "direction": "sell", "amount_gold": "0.5"})
	assert.Equal(t, response.CodeInsufficientFunds, env.Code)
	assert.Equal(t, "可用黄金余额不足", env.Message)

	var data struct {
		Field     string          `json:"field"`
		Requested decimal.Decimal `json:"requested"`
		Available decimal.Decimal `json:"available"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "free_gold", data.Field)
	assert.True(t, data.Requested.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, data.Available.IsZero())

	env = do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 1, "direction": "buy", "amount_gold": "6"})
	assert.Equal(t, response.CodeInsufficientFunds, env.Code)
	assert.Equal(t, "现金余额不足", env.Message)
}

func TestHandler_ParamErrors(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodGet, "/api/v1/account/balance?user_id=abc", nil)
	assert.Equal(t, response.CodeParamError, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 1, "direction": "hold", "amount_gold": "1"})
	assert.Equal(t, response.CodeParamError, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/account/deposit", gin.H{"user_id": 1, "amount": "0"})
	assert.Equal(t, response.CodeInvalidAmount, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/defi/borrow", gin.H{"user_id": 1, "principal": "10", "currency": "EUR", "term_days": 30})
	assert.Equal(t, response.CodeParamError, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/defi/repay", gin.H{"user_id": 1, "amount": "10"})
	assert.Equal(t, response.CodeNoActiveLoan, env.Code)
}

func TestHandler_RedeemAndList(t *testing.T) {
	r := newTestRouter(t)

	env := do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 3, "direction": "buy", "amount_gold": "2"})
	require.Equal(t, response.CodeSuccess, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/gold/redeem", gin.H{"user_id": 3, "amount_gold": "1.5", "delivery_address": "vault 9"})
	require.Equal(t, response.CodeSuccess, env.Code, env.Message)
	var redemption struct {
		RedemptionNo string `json:"redemption_no"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &redemption))
	assert.NotEmpty(t, redemption.RedemptionNo)

	env = do(t, r, http.MethodGet, "/api/v1/gold/redemptions?redemption_no="+redemption.RedemptionNo, nil)
	assert.Equal(t, response.CodeSuccess, env.Code)

	env = do(t, r, http.MethodGet, "/api/v1/gold/redemptions?redemption_no=RDM-none", nil)
	assert.Equal(t, response.CodeRedemptionNotFound, env.Code)

	env = do(t, r, http.MethodGet, "/api/v1/account/transactions?user_id=3&page=1&page_size=2", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.Contains(t, string(env.Data), `"total":4`)
}

func TestHandler_GoldPrice(t *testing.T) {
	r := newTestRouter(t)
	env := do(t, r, http.MethodGet, "/api/v1/gold/price", nil)
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.JSONEq(t, `{"price":"2000"}`, string(env.Data))
}

func TestHandler_AdminDefaultNotDue(t *testing.T) {
	r := newTestRouter(t)

	do(t, r, http.MethodPost, "/api/v1/gold/trade", gin.H{"user_id": 5, "direction": "buy", "amount_gold": "1"})
	do(t, r, http.MethodPost, "/api/v1/defi/stake", gin.H{"user_id": 5, "amount": "1"})
	env := do(t, r, http.MethodPost, "/api/v1/defi/borrow", gin.H{"user_id": 5, "principal": "100", "currency": "BTC", "term_days": 5})
	require.Equal(t, response.CodeSuccess, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/admin/loan/default", gin.H{"user_id": 5})
	assert.Equal(t, response.CodeLoanNotDue, env.Code)

	env = do(t, r, http.MethodPost, "/api/v1/admin/loan/liquidate", gin.H{"user_id": 5})
	require.Equal(t, response.CodeSuccess, env.Code)
	assert.Contains(t, string(env.Data), `"status":"LIQUIDATED"`)
}
