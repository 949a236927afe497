package service

import (
	"context"

	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/oracle"
	"goldledger/pkg/idgen"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// TradeResult 一笔成交，不单独落库，只体现为两条流水
type TradeResult struct {
	TradeNo    string          `json:"trade_no"`
	Direction  Direction       `json:"direction"`
	AmountGold decimal.Decimal `json:"amount_gold"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalCash  decimal.Decimal `json:"total_cash"`
	Balances   model.Balances  `json:"balances"`
}

type TradeService struct {
	engine *ledger.Engine
	oracle oracle.PriceOracle
	logger *zap.Logger
}

func NewTradeService(engine *ledger.Engine, priceOracle oracle.PriceOracle, logger *zap.Logger) *TradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeService{
		engine: engine,
		oracle: priceOracle,
		logger: logger,
	}
}

// Trade 按价格源当前报价买卖黄金
func (s *TradeService) Trade(ctx context.Context, userID int64, direction Direction, goldAmount decimal.Decimal) (*TradeResult, error) {
	if err := validateTrade(direction, goldAmount); err != nil {
		return nil, err
	}

	price, err := s.oracle.CurrentPrice(ctx)
	if err != nil {
		s.logger.Warn("获取金价失败", zap.Error(err))
		return nil, ledger.Unavailable("price oracle", err)
	}
	return s.Execute(ctx, userID, direction, goldAmount, price)
}

// Execute 以给定单价成交，现金与黄金两条腿要么都生效，要么都不生效
//
//	buy:  cash -total, free_gold +gold
//	sell: free_gold -gold, cash +total
func (s *TradeService) Execute(ctx context.Context, userID int64, direction Direction, goldAmount, unitPrice decimal.Decimal) (*TradeResult, error) {
	if err := validateTrade(direction, goldAmount); err != nil {
		return nil, err
	}
	if err := ledger.CheckAmount("unit_price", unitPrice); err != nil {
		return nil, err
	}

	total := goldAmount.Mul(unitPrice).Round(ledger.AmountScale)

	var ops []ledger.Op
	entryType := model.TransactionTypeTradeBuy
	if direction == DirectionBuy {
		ops = []ledger.Op{
			{Field: model.FieldCash, Delta: total.Neg()},
			{Field: model.FieldFreeGold, Delta: goldAmount},
		}
	} else {
		entryType = model.TransactionTypeTradeSell
		ops = []ledger.Op{
			{Field: model.FieldFreeGold, Delta: goldAmount.Neg()},
			{Field: model.FieldCash, Delta: total},
		}
	}

	tradeNo := idgen.GenerateTradeNo()
	res, err := s.engine.ApplyBatch(ctx, userID, ops,
		ledger.WithEntryType(entryType),
		ledger.WithBizNo(tradeNo),
		ledger.WithRemark(string(direction)+" @ "+unitPrice.String()))
	if err != nil {
		return nil, err
	}

	s.logger.Info("黄金成交",
		zap.String("trade_no", tradeNo),
		zap.Int64("user_id", userID),
		zap.String("direction", string(direction)),
		zap.String("amount_gold", goldAmount.String()),
		zap.String("unit_price", unitPrice.String()))

	return &TradeResult{
		TradeNo:    tradeNo,
		Direction:  direction,
		AmountGold: goldAmount,
		UnitPrice:  unitPrice,
		TotalCash:  total,
		Balances:   res.Account.Snapshot(),
	}, nil
}

func validateTrade(direction Direction, goldAmount decimal.Decimal) error {
	if direction != DirectionBuy && direction != DirectionSell {
		return ledger.InvalidArgument("unknown trade direction %q", direction)
	}
	if err := ledger.CheckAmount("amount_gold", goldAmount); err != nil {
		return err
	}
	return nil
}
