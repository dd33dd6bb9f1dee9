package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		s := gen.Generate().String()
		require.Len(t, s, 26)
		require.False(t, seen[s], "duplicate ULID %s", s)
		seen[s] = true
	}
}

func TestGenerateSorted(t *testing.T) {
	gen := NewGenerator()
	prev := gen.Generate().String()
	for i := 0; i < 100; i++ {
		next := gen.Generate().String()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestTypedIDs(t *testing.T) {
	tests := []struct {
		id     string
		prefix string
	}{
		{NewSessionID().String(), SessionPrefix},
		{NewEventID().String(), EventPrefix},
		{NewClientID().String(), ClientPrefix},
		{NewSpanID().String(), SpanPrefix},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.True(t, strings.HasPrefix(tt.id, tt.prefix+"_"))
			prefix, _, err := Split(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.True(t, IsValid(tt.id))
		})
	}
}

func TestSplitInvalid(t *testing.T) {
	for _, bad := range []string{"", "noprefix", "sess_notaulid", "_"} {
		assert.False(t, IsValid(bad), bad)
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Second)
	ts, err := Timestamp(NewSessionID().String())
	require.NoError(t, err)
	assert.True(t, ts.After(before))

	_, err = Timestamp("bogus")
	assert.Error(t, err)
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	var mu sync.Mutex
	seen := map[string]bool{}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := gen.WithPrefix(EventPrefix)
				mu.Lock()
				seen[s] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
