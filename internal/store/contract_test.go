package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/ashureev/brieflab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBrief(topic string) domain.Brief {
	return domain.Brief{
		Topic:       topic,
		ContextUsed: "",
		Summary:     "A sufficiently long summary about " + topic,
		KeyFindings: []string{"first finding", "second finding"},
		Limitations: []string{},
		References: []domain.Evidence{
			{ID: "ev-1", Title: "Source", URL: "https://example.com/source", Snippet: "snippet"},
		},
	}
}

func mustKey(t *testing.T, id string) domain.ConversationKey {
	t.Helper()
	key, err := domain.NewConversationKey("", id)
	require.NoError(t, err)
	return key
}

// runConversationStoreSuite checks the behavior every backend must share.
func runConversationStoreSuite(t *testing.T, newStore func(t *testing.T) ConversationStore) {
	t.Run("unknown conversation is empty", func(t *testing.T) {
		s := newStore(t)
		briefs, err := s.Get(context.Background(), mustKey(t, "unknown_conv"))
		require.NoError(t, err)
		assert.Empty(t, briefs)
	})

	t.Run("append then get returns brief last", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "test_conv")

		first := testBrief("First topic")
		require.NoError(t, s.Append(ctx, key, first))
		second := testBrief("Second topic")
		second.ContextUsed = "- First topic: earlier"
		require.NoError(t, s.Append(ctx, key, second))

		briefs, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Len(t, briefs, 2)
		assert.Equal(t, first.Clone(), briefs[0])
		assert.Equal(t, second.Clone(), briefs[1])
	})

	t.Run("get is idempotent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "idem")
		require.NoError(t, s.Append(ctx, key, testBrief("Idempotent")))

		a, err := s.Get(ctx, key)
		require.NoError(t, err)
		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("returned briefs do not alias storage", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "alias")
		require.NoError(t, s.Append(ctx, key, testBrief("Aliasing")))

		a, err := s.Get(ctx, key)
		require.NoError(t, err)
		a[0].KeyFindings[0] = "mutated"

		b, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "first finding", b[0].KeyFindings[0])
	})

	t.Run("invalid brief is rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "invalid")
		bad := testBrief("Bad")
		bad.Summary = "short"

		err := s.Append(ctx, key, bad)
		require.ErrorIs(t, err, domain.ErrInvalidBrief)

		briefs, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, briefs)
	})

	t.Run("list returns distinct ids", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, mustKey(t, "conv1"), testBrief("Topic one")))
		require.NoError(t, s.Append(ctx, mustKey(t, "conv2"), testBrief("Topic two")))
		require.NoError(t, s.Append(ctx, mustKey(t, "conv2"), testBrief("Topic two again")))

		ids, err := s.List(ctx, domain.DefaultOwner)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"conv1", "conv2"}, ids)
	})

	t.Run("owners are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		alice, err := domain.NewConversationKey("alice", "shared")
		require.NoError(t, err)
		bob, err := domain.NewConversationKey("bob", "shared")
		require.NoError(t, err)

		require.NoError(t, s.Append(ctx, alice, testBrief("Alice topic")))

		briefs, err := s.Get(ctx, bob)
		require.NoError(t, err)
		assert.Empty(t, briefs)

		ids, err := s.List(ctx, "bob")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("clear removes conversation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "conv1")
		require.NoError(t, s.Append(ctx, key, testBrief("Topic")))
		require.NoError(t, s.Clear(ctx, key))

		briefs, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, briefs)

		ids, err := s.List(ctx, domain.DefaultOwner)
		require.NoError(t, err)
		assert.NotContains(t, ids, "conv1")

		require.NoError(t, s.Clear(ctx, key), "clearing twice is a no-op")
	})

	t.Run("concurrent appends are serialized", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := mustKey(t, "busy")

		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- s.Append(ctx, key, testBrief(fmt.Sprintf("Topic %02d", i)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		briefs, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Len(t, briefs, writers)

		seen := make(map[string]bool)
		for _, b := range briefs {
			seen[b.Topic] = true
		}
		assert.Len(t, seen, writers)
	})

	t.Run("invalid ids are rejected", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), domain.ConversationKey{Owner: domain.DefaultOwner, ID: "../escape"})
		assert.ErrorIs(t, err, domain.ErrInvalidConversationID)
	})

	t.Run("dot-prefixed ids are rejected so list stays complete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		hidden := domain.ConversationKey{Owner: domain.DefaultOwner, ID: ".hidden"}

		err := s.Append(ctx, hidden, testBrief("hidden topic"))
		assert.ErrorIs(t, err, domain.ErrInvalidConversationID)

		require.NoError(t, s.Append(ctx, mustKey(t, "visible.v2"), testBrief("visible topic")))
		ids, err := s.List(ctx, domain.DefaultOwner)
		require.NoError(t, err)
		assert.Equal(t, []string{"visible.v2"}, ids)
	})
}

func TestFileStoreContract(t *testing.T) {
	runConversationStoreSuite(t, func(t *testing.T) ConversationStore {
		s, err := NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	runConversationStoreSuite(t, func(t *testing.T) ConversationStore {
		s := newTestSQLite(t)
		return s
	})
}
