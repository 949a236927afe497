package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextID_Unique(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := NextID()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestGenerateNo_Prefix(t *testing.T) {
	assert.True(t, strings.HasPrefix(GenerateTransactionNo(), PrefixTransaction))
	assert.True(t, strings.HasPrefix(GenerateLedgerNo(), PrefixLedger))
	assert.True(t, strings.HasPrefix(GenerateTradeNo(), PrefixTrade))
	assert.True(t, strings.HasPrefix(GenerateLoanNo(), PrefixLoan))
	assert.True(t, strings.HasPrefix(GenerateRedemptionNo(), PrefixRedemption))
	assert.NotEqual(t, GenerateLoanNo(), GenerateLoanNo())
}

func TestNew_InvalidWorkerID(t *testing.T) {
	_, err := New(-1)
	assert.Error(t, err)
	_, err = New(maxWorkerID + 1)
	assert.Error(t, err)
	assert.Error(t, Init(4096))
}

func TestGenerate_ClockMovedBackwards(t *testing.T) {
	g, err := New(3)
	require.NoError(t, err)

	clock := epoch + 1000
	g.now = func() int64 { return clock }

	first := g.Generate()
	clock -= 10
	second := g.Generate()
	clock += 20
	third := g.Generate()

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
	assert.Equal(t, int64(3), (third>>workerIDShift)&maxWorkerID)
}
