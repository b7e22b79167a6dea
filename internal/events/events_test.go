package events

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	assert.Equal(t, 1, b.Subscribers())

	require.NoError(t, b.Publish(context.Background(), Event{Kind: KindQuotesSynced}))
	// buffer is full, second event is dropped instead of blocking
	require.NoError(t, b.Publish(context.Background(), Event{Kind: KindTransactionApplied}))

	got := <-ch
	assert.Equal(t, KindQuotesSynced, got.Kind)

	b.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers())

	b.Unsubscribe(ch)
}

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("broker down") }

func TestMulti_ContinuesAfterFailure(t *testing.T) {
	b := NewBroadcaster(4)
	ch := b.Subscribe()

	err := NewMulti(zap.NewNop(), failing{}, b).Publish(context.Background(), Event{Kind: KindTransactionApplied, WalletID: "w1"})
	assert.Error(t, err)

	got := <-ch
	assert.Equal(t, "w1", got.Key())
}

func TestEvent_Key(t *testing.T) {
	assert.Equal(t, "quotes.synced", Event{Kind: KindQuotesSynced}.Key())
}
