package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piphub/backend/internal/coins"
)

func TestEventPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	ev := coins.Event{
		Stream:        BalanceStream("user1"),
		UserID:        "user1",
		TransactionID: "tx-1",
		Amount:        50,
		NewBalance:    150,
		Trigger:       coins.TriggerPostTipped,
		Channel:       coins.ChannelForum,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	t.Run("publishes to the event stream", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		publisher := NewEventPublisher(rdb, zerolog.Nop())

		mock.ExpectPublish("coins:balance:user1", payload).SetVal(1)

		publisher.Publish(ctx, ev)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("publish all side effects", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		publisher := NewEventPublisher(rdb, zerolog.Nop())

		admin := ev
		admin.Stream = AdminFeedStream
		adminPayload, err := json.Marshal(admin)
		require.NoError(t, err)

		mock.ExpectPublish("coins:balance:user1", payload).SetVal(1)
		mock.ExpectPublish(AdminFeedStream, adminPayload).SetVal(1)

		publisher.PublishAll(ctx, &coins.SideEffects{Events: []coins.Event{ev, admin}})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil side effects are a no-op", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		publisher := NewEventPublisher(rdb, zerolog.Nop())

		publisher.PublishAll(ctx, nil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing redis drops the event without panicking", func(t *testing.T) {
		publisher := NewEventPublisher(nil, zerolog.Nop())
		publisher.Publish(ctx, ev)
	})
}
