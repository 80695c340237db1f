package body

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversAllChunksSummingToTotal(t *testing.T) {
	s := NewStream(1024)
	var total int
	s.OnData(func(chunk []byte) bool {
		total += len(chunk)
		return true
	})

	s.Deliver([]byte("hello"))
	s.Deliver([]byte(" world"))
	s.Finish()

	assert.Equal(t, 11, total)
	assert.EqualValues(t, 11, s.BytesReceived())
}

func TestStreamPauseHaltsDeliveryUntilResume(t *testing.T) {
	s := NewStream(1024)
	var delivered []string
	s.OnData(func(chunk []byte) bool {
		delivered = append(delivered, string(chunk))
		return false // pause after first chunk
	})

	s.Deliver([]byte("a"))
	require.True(t, s.Paused())

	s.Resume()
	assert.False(t, s.Paused())
	s.Deliver([]byte("b"))
	assert.Equal(t, []string{"a", "b"}, delivered)
}

func TestStreamEndCalledExactlyOnceOnSuccess(t *testing.T) {
	s := NewStream(1024)
	ends := 0
	s.OnEnd(func() { ends++ })
	s.Finish()
	s.Finish()
	assert.Equal(t, 1, ends)
}

func TestStreamErrorPreventsEnd(t *testing.T) {
	s := NewStream(1024)
	ends, errs := 0, 0
	s.OnEnd(func() { ends++ })
	s.OnError(func(err error) { errs++ })

	s.Fail(ErrSizeLimitExceeded)
	s.Finish()

	assert.Equal(t, 0, ends)
	assert.Equal(t, 1, errs)
}

func TestStreamSizeCapTriggersError(t *testing.T) {
	s := NewStream(4)
	var gotErr error
	s.OnError(func(err error) { gotErr = err })
	s.Deliver([]byte("12345"))
	assert.ErrorIs(t, gotErr, ErrSizeLimitExceeded)
}

func TestStreamLateRegistrationReplaysBufferedPrefix(t *testing.T) {
	s := NewStream(1024)
	s.SetBufferedPrefix([]byte("buffered-"))
	var got []byte
	s.OnData(func(chunk []byte) bool {
		got = append(got, chunk...)
		return true
	})
	s.Deliver([]byte("live"))
	assert.Equal(t, "buffered-live", string(got))
}
