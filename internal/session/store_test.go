package session_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/book-expert/vietforeign-service/internal/core"
	"github.com/book-expert/vietforeign-service/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateRequiresExistingSession(t *testing.T) {
	t.Parallel()

	store := session.NewStore()

	err := store.Update("nope", func(s *core.Session) error {
		s.RawTranscript = "x"

		return nil
	})
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestUpsertCreatesAndUpdates(t *testing.T) {
	t.Parallel()

	store := session.NewStore()

	require.NoError(t, store.Upsert("a", func(s *core.Session) error {
		s.RawTranscript = "xin chao"
		s.Status = core.StatusCompleted

		return nil
	}))

	require.NoError(t, store.Update("a", func(s *core.Session) error {
		s.CorrectedTranscript = "xin chào"

		return nil
	}))

	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
	assert.Equal(t, "xin chao", got.RawTranscript)
	assert.Equal(t, "xin chào", got.CorrectedTranscript)
	assert.Equal(t, core.StatusCompleted, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestFailedMutationIsDiscarded(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	require.NoError(t, store.Upsert("a", func(s *core.Session) error {
		s.CorrectedTranscript = "original"

		return nil
	}))

	sentinel := errors.New("rejected")
	err := store.Update("a", func(s *core.Session) error {
		s.CorrectedTranscript = "overwritten"

		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	got, _ := store.Get("a")
	assert.Equal(t, "original", got.CorrectedTranscript)
}

func TestGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	require.NoError(t, store.Upsert("a", func(s *core.Session) error {
		s.VoiceConversions = map[string]core.Conversion{"fr": {AudioURL: "/static/a.wav"}}

		return nil
	}))

	got, _ := store.Get("a")
	got.VoiceConversions["en"] = core.Conversion{}
	got.RawTranscript = "mutated"

	again, _ := store.Get("a")
	assert.Len(t, again.VoiceConversions, 1)
	assert.Empty(t, again.RawTranscript)
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	require.NoError(t, store.Upsert("a", func(*core.Session) error { return nil }))

	var waitGroup sync.WaitGroup

	for index := range 50 {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			assert.NoError(t, store.Update("a", func(s *core.Session) error {
				if s.VoiceConversions == nil {
					s.VoiceConversions = make(map[string]core.Conversion)
				}

				s.VoiceConversions[strconv.Itoa(index)] = core.Conversion{}

				return nil
			}))
		}()
	}

	waitGroup.Wait()

	got, _ := store.Get("a")
	assert.Len(t, got.VoiceConversions, 50)
}

func TestClear(t *testing.T) {
	t.Parallel()

	store := session.NewStore()
	require.NoError(t, store.Upsert("a", func(*core.Session) error { return nil }))
	require.NoError(t, store.Upsert("b", func(*core.Session) error { return nil }))

	store.Clear()

	assert.Equal(t, 0, store.Len())

	_, ok := store.Get("a")
	assert.False(t, ok)
}
