package service

import (
	"context"
	"strings"

	"goldledger/internal/ledger"
	"goldledger/internal/model"
	"goldledger/internal/repository"
	"goldledger/pkg/idgen"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RedemptionService 实物黄金赎回
// 扣减可用黄金与创建赎回申请在同一次提交中完成，黄金从此离开账本
type RedemptionService struct {
	engine  *ledger.Engine
	store   repository.Store
	minimum decimal.Decimal
	logger  *zap.Logger
}

func NewRedemptionService(engine *ledger.Engine, store repository.Store, minimum decimal.Decimal, logger *zap.Logger) *RedemptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedemptionService{
		engine:  engine,
		store:   store,
		minimum: minimum,
		logger:  logger,
	}
}

func (s *RedemptionService) Request(ctx context.Context, userID int64, amount decimal.Decimal, deliveryAddress string) (*model.RedemptionRequest, error) {
	if err := ledger.CheckAmount("amount", amount); err != nil {
		return nil, err
	}
	if amount.LessThan(s.minimum) {
		return nil, errors.Wrapf(ledger.ErrInvalidAmount, "amount %s below minimum redemption %s", amount, s.minimum)
	}
	address := strings.TrimSpace(deliveryAddress)
	if address == "" {
		return nil, ledger.InvalidArgument("delivery address is required")
	}

	redemptionNo := idgen.GenerateRedemptionNo()
	entry := ledger.Entry{Type: model.TransactionTypeRedeem, BizNo: redemptionNo}

	res, err := s.engine.Execute(ctx, userID, entry, func(tx *ledger.Tx) error {
		if err := tx.Apply(ledger.Op{Field: model.FieldFreeGold, Delta: amount.Neg()}); err != nil {
			return err
		}
		tx.CreateRedemption(&model.RedemptionRequest{
			RedemptionNo:    redemptionNo,
			UserID:          userID,
			AmountGold:      amount,
			DeliveryAddress: address,
			Status:          model.RedemptionStatusRequested,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("赎回申请已创建",
		zap.String("redemption_no", redemptionNo),
		zap.Int64("user_id", userID),
		zap.String("amount_gold", amount.String()))
	return res.Redemption, nil
}

func (s *RedemptionService) Get(ctx context.Context, redemptionNo string) (*model.RedemptionRequest, error) {
	req, err := s.store.GetRedemption(ctx, redemptionNo)
	if err != nil {
		if errors.Is(err, repository.ErrRedemptionNotFound) {
			return nil, err
		}
		return nil, ledger.Unavailable("load redemption", err)
	}
	return req, nil
}

func (s *RedemptionService) List(ctx context.Context, userID int64) ([]*model.RedemptionRequest, error) {
	reqs, err := s.store.ListRedemptions(ctx, userID)
	if err != nil {
		return nil, ledger.Unavailable("list redemptions", err)
	}
	return reqs, nil
}
