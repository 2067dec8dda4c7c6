package anomaly

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_DedupesKindAndSubject(t *testing.T) {
	c := NewCollector(nil)

	assert.True(t, c.Record(Cycle, "7", "first"))
	assert.False(t, c.Record(Cycle, "7", "second"))
	assert.True(t, c.Record(DuplicateID, "7", ""))

	assert.Equal(t, 1, c.Count(Cycle))
	assert.Equal(t, 1, c.Count(DuplicateID))
	assert.Equal(t, 2, c.Total())

	list := c.Anomalies()
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Detail)
}

func TestCollector_AnomaliesSortedByKindThenSubject(t *testing.T) {
	c := NewCollector(nil)
	c.RecordID(DuplicateID, 9, "dup")
	c.RecordID(BrokenParent, 3, "parent %d missing", 100)
	c.RecordID(BrokenParent, 1, "parent %d missing", 100)

	list := c.Anomalies()
	require.Len(t, list, 3)
	assert.Equal(t, Anomaly{Kind: BrokenParent, Subject: "1", Detail: "parent 100 missing"}, list[0])
	assert.Equal(t, "3", list[1].Subject)
	assert.Equal(t, DuplicateID, list[2].Kind)
}

func TestCollector_Summary(t *testing.T) {
	c := NewCollector(nil)
	c.Record(ChildCountMismatch, "1", "")
	c.Record(ChildCountMismatch, "2", "")
	c.Record(MissingTaxData, "tax_responses", "")

	s := c.Summary()
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, map[Kind]int{ChildCountMismatch: 2, MissingTaxData: 1}, s.ByKind)
}

func TestCollector_ConcurrentRecord(t *testing.T) {
	c := NewCollector(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.RecordID(Cycle, int64(i%10), "loop")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, c.Count(Cycle))
}
