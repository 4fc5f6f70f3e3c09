package coins

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerValidation(t *testing.T) {
	t.Run("known triggers are valid", func(t *testing.T) {
		assert.True(t, TriggerSignupBonus.Valid())
		assert.True(t, TriggerManualGrant.Valid())
	})

	t.Run("unknown trigger is rejected", func(t *testing.T) {
		assert.False(t, Trigger("forum.made_up").Valid())
	})

	t.Run("trigger maps to its channel", func(t *testing.T) {
		assert.Equal(t, ChannelOnboarding, TriggerSignupBonus.Channel())
		assert.Equal(t, ChannelMarketplace, TriggerItemPurchased.Channel())
	})

	t.Run("admin family detection", func(t *testing.T) {
		assert.True(t, TriggerManualGrant.Administrative())
		assert.True(t, TriggerBalanceFix.Administrative())
		assert.False(t, TriggerPostCreated.Administrative())
	})
}

func TestValidatePair(t *testing.T) {
	t.Run("matching pair", func(t *testing.T) {
		assert.NoError(t, ValidatePair(TriggerPostCreated, ChannelForum))
	})

	t.Run("unknown trigger", func(t *testing.T) {
		err := ValidatePair(Trigger("nope"), ChannelForum)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown trigger")
	})

	t.Run("unknown channel", func(t *testing.T) {
		err := ValidatePair(TriggerPostCreated, Channel("nope"))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown channel")
	})

	t.Run("trigger outside channel", func(t *testing.T) {
		err := ValidatePair(TriggerPostCreated, ChannelMarketplace)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not belong")
	})
}
