package idgen

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateClaimCodeFormat(t *testing.T) {
	cases := map[string]string{
		"10% Off Voucher":   "OFFVOU",
		"6pc Pancake Stack": "PCPANC",
		"Premium Choice":    "PREMIU",
		"Tea":               "TEA",
		"123 !!":            "REWARD",
	}
	for name, prefix := range cases {
		code, err := GenerateClaimCode(name)
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile("^"+prefix+"-[2-9A-HJ-NP-Z]{8}$"), code, name)
	}
}

func TestGenerateClaimCodeNoDuplicates(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code, err := GenerateClaimCode("Popsicle Waffle")
		require.NoError(t, err)
		_, dup := seen[code]
		require.False(t, dup, "duplicate code %s", code)
		seen[code] = struct{}{}
	}
}

func TestGenerateTransactionNoConcurrentUnique(t *testing.T) {
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				no := GenerateTransactionNo()
				mu.Lock()
				seen[no] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestNewSnowflakeRejectsWorkerID(t *testing.T) {
	_, err := NewSnowflake(-1)
	assert.Error(t, err)
	_, err = NewSnowflake(MaxWorkerID + 1)
	assert.Error(t, err)

	g, err := NewSnowflake(MaxWorkerID)
	require.NoError(t, err)
	assert.EqualValues(t, MaxWorkerID, g.Generate()>>sequenceBits&MaxWorkerID)
}

func TestSnowflakeClockMovesBackwards(t *testing.T) {
	g, err := NewSnowflake(3)
	require.NoError(t, err)

	base := time.UnixMilli(epochMillis + 10_000)
	current := base
	g.now = func() time.Time { return current }

	first := g.Generate()
	current = base.Add(-5 * time.Second)
	second := g.Generate()
	current = base.Add(time.Millisecond)
	third := g.Generate()

	assert.Greater(t, second, first)
	assert.Greater(t, third, second)
	assert.EqualValues(t, 1, second&maxSequence)
	assert.EqualValues(t, 3, third>>sequenceBits&MaxWorkerID)
}
