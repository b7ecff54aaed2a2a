package inbox

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whatsbridge/internal/domain"
)

func msg(i int) domain.NormalizedMessage {
	return domain.NormalizedMessage{
		SenderDisplayName: "Bence",
		Text:              fmt.Sprintf("m%d", i),
		TimestampMillis:   int64(i),
		SenderAddress:     "36301234561@c.us",
	}
}

func TestStore_SnapshotPreservesArrivalOrder(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.Append(msg(i))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 5)
	for i, m := range snap {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Text)
	}
	assert.Equal(t, 5, s.Len())
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := New()
	s.Append(msg(0))

	snap := s.Snapshot()
	snap[0].Text = "mutated"
	s.Append(msg(1))

	again := s.Snapshot()
	assert.Equal(t, "m0", again[0].Text)
	assert.Len(t, snap, 1, "earlier snapshot does not grow")
}

func TestStore_EmptySnapshot(t *testing.T) {
	snap := New().Snapshot()
	assert.NotNil(t, snap)
	assert.Empty(t, snap)
}

func TestStore_ConcurrentReadersSeeConsistentPrefix(t *testing.T) {
	s := New()
	const total = 500

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			s.Append(msg(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				snap := s.Snapshot()
				for j, m := range snap {
					if m.TimestampMillis != int64(j) {
						t.Errorf("snapshot not a prefix: index %d holds %d", j, m.TimestampMillis)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, total, s.Len())
}
