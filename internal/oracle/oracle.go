package oracle

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"goldledger/internal/config"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ============================================================================
// 金价来源
// ============================================================================
//
// 账本只把价格当作调用时刻有效的输入，不做新鲜度校验；
// 价格是否过期由价格源自己负责
// ============================================================================

var (
	ErrPriceUnavailable = errors.New("金价暂不可用")
	ErrInvalidPrice     = errors.New("金价必须大于 0")
)

// PriceOracle 每单位黄金的现金报价
type PriceOracle interface {
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)
}

// Static 固定价格，用于测试与演示
type Static struct {
	price decimal.Decimal
}

func NewStatic(price decimal.Decimal) (*Static, error) {
	if !price.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidPrice, "price=%s", price)
	}
	return &Static{price: price}, nil
}

func (s *Static) CurrentPrice(context.Context) (decimal.Decimal, error) {
	return s.price, nil
}

// Simulated 随机游走的模拟金价
// 每次报价在上一价格基础上随机浮动不超过 volatility，价格状态归实例所有
type Simulated struct {
	mu         sync.Mutex
	price      decimal.Decimal
	floor      decimal.Decimal
	volatility float64
	rnd        *rand.Rand
}

func NewSimulated(seed, volatility decimal.Decimal) (*Simulated, error) {
	if !seed.IsPositive() {
		return nil, errors.Wrapf(ErrInvalidPrice, "seed=%s", seed)
	}
	if volatility.IsNegative() || volatility.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, errors.Errorf("volatility 必须在 [0, 1) 之间: %s", volatility)
	}
	vol, _ := volatility.Float64()
	return &Simulated{
		price:      seed,
		floor:      seed.Div(decimal.NewFromInt(10)),
		volatility: vol,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Simulated) CurrentPrice(context.Context) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	change := (s.rnd.Float64()*2 - 1) * s.volatility
	next := s.price.Mul(decimal.NewFromFloat(1 + change)).Round(2)
	// 不低于初始价格的十分之一
	if next.LessThan(s.floor) {
		next = s.floor
	}
	s.price = next
	return next, nil
}

// RedisOracle 读取外部行情程序写入 Redis 的最新金价
type RedisOracle struct {
	client *redis.Client
	key    string
}

func NewRedisOracle(client *redis.Client, key string) *RedisOracle {
	return &RedisOracle{client: client, key: key}
}

func (r *RedisOracle) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	raw, err := r.client.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return decimal.Zero, errors.Wrapf(ErrPriceUnavailable, "key %s 不存在", r.key)
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "读取金价失败")
	}

	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "金价格式错误: %q", raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "price=%s", raw)
	}
	return price, nil
}

// Publish 写入最新金价，供行情程序或运维使用
func (r *RedisOracle) Publish(ctx context.Context, price decimal.Decimal) error {
	if !price.IsPositive() {
		return errors.Wrapf(ErrInvalidPrice, "price=%s", price)
	}
	return r.client.Set(ctx, r.key, price.String(), 0).Err()
}

// Describe 用于日志
func Describe(o PriceOracle) string {
	switch v := o.(type) {
	case *Static:
		return "static(" + v.price.String() + ")"
	case *Simulated:
		return "simulated(vol=" + strconv.FormatFloat(v.volatility, 'f', -1, 64) + ")"
	case *RedisOracle:
		return "redis(" + v.key + ")"
	}
	return "custom"
}

// FromConfig 按配置创建价格源；redis 模式需要传入客户端
func FromConfig(cfg config.OracleConfig, client *redis.Client) (PriceOracle, error) {
	switch cfg.Mode {
	case "static":
		price, err := decimal.NewFromString(cfg.StaticPrice)
		if err != nil {
			return nil, errors.Wrap(err, "oracle.static_price")
		}
		return NewStatic(price)
	case "", "simulated":
		seed, err := decimal.NewFromString(cfg.SeedPrice)
		if err != nil {
			return nil, errors.Wrap(err, "oracle.seed_price")
		}
		vol, err := decimal.NewFromString(cfg.Volatility)
		if err != nil {
			return nil, errors.Wrap(err, "oracle.volatility")
		}
		return NewSimulated(seed, vol)
	case "redis":
		if client == nil {
			return nil, errors.New("oracle.mode=redis 需要 Redis 客户端")
		}
		return NewRedisOracle(client, cfg.RedisKey), nil
	}
	return nil, errors.Errorf("未知的 oracle.mode: %s", cfg.Mode)
}
