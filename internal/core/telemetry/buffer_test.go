package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestNewEventBufferValidation(t *testing.T) {
	_, err := NewEventBuffer(0, OverflowDropOldest, testLogger())
	assert.Error(t, err)

	_, err = NewEventBuffer(10, "spill", testLogger())
	assert.Error(t, err)

	buffer, err := NewEventBuffer(10, OverflowBlock, testLogger())
	require.NoError(t, err)
	assert.NotNil(t, buffer)
}

func TestBufferDropOldest(t *testing.T) {
	buffer, err := NewEventBuffer(2, OverflowDropOldest, testLogger())
	require.NoError(t, err)

	first := NewEvent("s1")
	second := NewEvent("s2")
	third := NewEvent("s3")
	assert.True(t, buffer.Add(first))
	assert.True(t, buffer.Add(second))
	assert.True(t, buffer.Add(third))

	batch := buffer.Drain(0)
	require.Len(t, batch, 2)
	assert.Equal(t, second.ID, batch[0].ID)
	assert.Equal(t, third.ID, batch[1].ID)

	stats := buffer.Stats()
	assert.Equal(t, int64(3), stats.Accepted)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(2), stats.Drained)
}

func TestBufferDropNewest(t *testing.T) {
	buffer, err := NewEventBuffer(1, OverflowDropNewest, testLogger())
	require.NoError(t, err)

	first := NewEvent("s1")
	assert.True(t, buffer.Add(first))
	assert.False(t, buffer.Add(NewEvent("s2")))

	batch := buffer.Drain(0)
	require.Len(t, batch, 1)
	assert.Equal(t, first.ID, batch[0].ID)
}

func TestBufferErrorPolicy(t *testing.T) {
	buffer, err := NewEventBuffer(1, OverflowError, testLogger())
	require.NoError(t, err)

	assert.True(t, buffer.Add(NewEvent("s1")))
	assert.False(t, buffer.Add(NewEvent("s2")))
	assert.Equal(t, int64(1), buffer.Stats().Dropped)
}

func TestBufferBlockPolicyUnblocksOnDrain(t *testing.T) {
	buffer, err := NewEventBuffer(1, OverflowBlock, testLogger())
	require.NoError(t, err)
	require.True(t, buffer.Add(NewEvent("s1")))

	var wg sync.WaitGroup
	wg.Add(1)
	accepted := false
	go func() {
		defer wg.Done()
		accepted = buffer.Add(NewEvent("s2"))
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, buffer.Size())

	buffer.Drain(1)
	wg.Wait()
	assert.True(t, accepted)
	assert.Equal(t, 1, buffer.Size())
}

func TestBufferCloseReleasesBlockedProducers(t *testing.T) {
	buffer, err := NewEventBuffer(1, OverflowBlock, testLogger())
	require.NoError(t, err)
	require.True(t, buffer.Add(NewEvent("s1")))

	done := make(chan bool, 1)
	go func() {
		done <- buffer.Add(NewEvent("s2"))
	}()

	time.Sleep(50 * time.Millisecond)
	buffer.Close()

	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("blocked producer was not released by Close")
	}

	assert.False(t, buffer.Add(NewEvent("s3")))
}

func TestDrainRespectsMaxCount(t *testing.T) {
	buffer, err := NewEventBuffer(10, OverflowDropOldest, testLogger())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		buffer.Add(NewEvent("s"))
	}

	assert.Len(t, buffer.Drain(2), 2)
	assert.Len(t, buffer.Drain(100), 3)
	assert.Nil(t, buffer.Drain(1))
}

func TestBufferRejectsNil(t *testing.T) {
	buffer, err := NewEventBuffer(10, OverflowDropOldest, testLogger())
	require.NoError(t, err)
	assert.False(t, buffer.Add(nil))
}
