package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumire/fleetdesk/internal/domain"
	"github.com/sumire/fleetdesk/internal/repository"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []domain.Message
	err  error
}

func (r *recordingNotifier) NotifyMessage(_ context.Context, m domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func TestMessages_PostAndHistory(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewMessageService(repository.NewMemoryMessageStore(), notifier, discardLogger())
	ctx := context.Background()
	key := domain.ThreadKeyFor(owner.ID)

	m1, err := svc.Post(ctx, owner, key, "is the van ready?")
	require.NoError(t, err)
	assert.Equal(t, domain.SenderUser, m1.Sender)
	assert.Equal(t, int64(1), m1.Seq)

	m2, err := svc.Post(ctx, admin, key, "by noon")
	require.NoError(t, err)
	assert.Equal(t, domain.SenderAdmin, m2.Sender)

	history, err := svc.History(ctx, owner, key, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, m1.ID, history[0].ID)
	assert.Equal(t, m2.ID, history[1].ID)

	tail, err := svc.History(ctx, admin, key, 1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, m2.ID, tail[0].ID)

	assert.Len(t, notifier.msgs, 2)
}

func TestMessages_Validation(t *testing.T) {
	notifier := &recordingNotifier{err: fmt.Errorf("notifier down")}
	svc := NewMessageService(repository.NewMemoryMessageStore(), notifier, discardLogger())
	ctx := context.Background()
	key := domain.ThreadKeyFor(owner.ID)

	_, err := svc.Post(ctx, owner, key, "   ")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "text", vErr.Field)

	_, err = svc.Post(ctx, stranger, key, "hello")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.History(ctx, stranger, key, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Post(ctx, owner, "not-a-thread", "hello")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "thread_key", vErr.Field)

	_, err = svc.History(ctx, owner, key, -1)
	require.ErrorAs(t, err, &vErr)

	// A failing notifier does not fail the post.
	_, err = svc.Post(ctx, owner, key, "hello")
	assert.NoError(t, err)

	_, err = svc.Threads(ctx, owner)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	keys, err := svc.Threads(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)
}

func TestMessages_ConcurrentPostsKeepOrder(t *testing.T) {
	svc := NewMessageService(repository.NewMemoryMessageStore(), nil, discardLogger())
	ctx := context.Background()
	key := domain.ThreadKeyFor(owner.ID)

	var wg sync.WaitGroup
	for _, actor := range []domain.Actor{owner, admin} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_, err := svc.Post(ctx, actor, key, fmt.Sprintf("%s %d", actor.Role, i))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	history, err := svc.History(ctx, owner, key, 0)
	require.NoError(t, err)
	require.Len(t, history, 100)

	next := map[domain.Sender]int{}
	for i, m := range history {
		assert.Equal(t, int64(i+1), m.Seq)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(history[i-1].Timestamp))
		}
		assert.Equal(t, fmt.Sprintf("%s %d", m.Sender, next[m.Sender]), m.Text)
		next[m.Sender]++
	}
}
