package idgen

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// 【为什么需要分布式ID？】
//
// 流水号、交易单号、借贷单号要求：
//   1. 全局唯一 - 不能重复
//   2. 趋势递增 - 便于数据库索引
//   3. 高性能 - 支持高并发生成
//   4. 信息隐藏 - 不暴露业务量
//
// 【雪花算法结构】64位
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//   |   |            |            |
//   |   |            |            +-- 同一毫秒内的序列号（0-4095）
//   |   |            +-- 机器ID（0-1023）
//   |   +-- 毫秒级时间戳（可用约69年）
//   +-- 符号位，始终为0
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 起始时间戳（2024-01-01 00:00:00 UTC）
	workerIDBits   = 10                   // 机器ID位数
	sequenceBits   = 12                   // 序列号位数
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() int64
}

// New 创建生成器，workerID 取值 0-1023
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, errors.Errorf("workerID 必须在 0-%d 之间: %d", maxWorkerID, workerID)
	}
	return &Snowflake{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

var (
	defaultGenerator *Snowflake
	mu               sync.RWMutex
)

// Init 设置默认生成器，进程启动时调用一次
func Init(workerID int64) error {
	g, err := New(workerID)
	if err != nil {
		return err
	}
	mu.Lock()
	defaultGenerator = g
	mu.Unlock()
	return nil
}

// NextID 使用默认生成器生成ID，未初始化时使用 workerID = 1
func NextID() int64 {
	mu.RLock()
	g := defaultGenerator
	mu.RUnlock()
	if g == nil {
		mu.Lock()
		if defaultGenerator == nil {
			defaultGenerator, _ = New(1)
		}
		g = defaultGenerator
		mu.Unlock()
	}
	return g.Generate()
}

// Generate 生成ID
// 时钟回拨时沿用上一次的时间戳继续递增序列号，保证单调
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now < s.timestamp {
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// 业务单号前缀
const (
	PrefixTransaction = "TXN" // 账户流水
	PrefixLedger      = "LDG" // 账本变更批次
	PrefixTrade       = "TRD" // 黄金买卖
	PrefixLoan        = "LN"  // 抵押借贷
	PrefixRedemption  = "RDM" // 实物赎回
)

// generateNo 前缀 + 年月日时分秒 + 完整雪花ID
// 例如：TRD20260115143052_123456789012345
func generateNo(prefix string) string {
	id := NextID()
	timestamp := time.Now().Format("20060102150405")
	return fmt.Sprintf("%s%s_%d", prefix, timestamp, id)
}

// GenerateTransactionNo 生成流水号
func GenerateTransactionNo() string {
	return generateNo(PrefixTransaction)
}

// GenerateLedgerNo 生成账本变更批次号，同一批次的流水共用
func GenerateLedgerNo() string {
	return generateNo(PrefixLedger)
}

// GenerateTradeNo 生成交易单号
func GenerateTradeNo() string {
	return generateNo(PrefixTrade)
}

// GenerateLoanNo 生成借贷单号
func GenerateLoanNo() string {
	return generateNo(PrefixLoan)
}

// GenerateRedemptionNo 生成赎回单号
func GenerateRedemptionNo() string {
	return generateNo(PrefixRedemption)
}
