package coins

import "fmt"

// Channel groups triggers into a coarse category. The set is closed: any
// value outside it is rejected before a transaction touches storage.
type Channel string

const (
	ChannelOnboarding  Channel = "onboarding"
	ChannelForum       Channel = "forum"
	ChannelMarketplace Channel = "marketplace"
	ChannelMessaging   Channel = "messaging"
	ChannelRecharge    Channel = "recharge"
	ChannelReferral    Channel = "referral"
	ChannelBot         Channel = "bot"
	ChannelAdmin       Channel = "admin"
)

// Trigger is the reason code for a transaction. Every trigger belongs to
// exactly one channel.
type Trigger string

const (
	TriggerSignupBonus     Trigger = "onboarding.signup_bonus"
	TriggerProfileComplete Trigger = "onboarding.profile_complete"
	TriggerPostCreated     Trigger = "forum.post_created"
	TriggerBestAnswer      Trigger = "forum.best_answer"
	TriggerPostTipped      Trigger = "forum.post_tipped"
	TriggerItemPurchased   Trigger = "marketplace.item_purchased"
	TriggerItemSold        Trigger = "marketplace.item_sold"
	TriggerListingFee      Trigger = "marketplace.listing_fee"
	TriggerPaidMessage     Trigger = "messaging.paid_message"
	TriggerPackagePurchase Trigger = "recharge.package_purchased"
	TriggerInviteAccepted  Trigger = "referral.invite_accepted"
	TriggerBotEarn         Trigger = "bot.simulated_earn"
	TriggerBotSpend        Trigger = "bot.simulated_spend"
	TriggerManualGrant     Trigger = "admin.manual_grant"
	TriggerManualDeduct    Trigger = "admin.manual_deduct"
	TriggerBalanceFix      Trigger = "admin.balance_correction"
)

var triggerChannels = map[Trigger]Channel{
	TriggerSignupBonus:     ChannelOnboarding,
	TriggerProfileComplete: ChannelOnboarding,
	TriggerPostCreated:     ChannelForum,
	TriggerBestAnswer:      ChannelForum,
	TriggerPostTipped:      ChannelForum,
	TriggerItemPurchased:   ChannelMarketplace,
	TriggerItemSold:        ChannelMarketplace,
	TriggerListingFee:      ChannelMarketplace,
	TriggerPaidMessage:     ChannelMessaging,
	TriggerPackagePurchase: ChannelRecharge,
	TriggerInviteAccepted:  ChannelReferral,
	TriggerBotEarn:         ChannelBot,
	TriggerBotSpend:        ChannelBot,
	TriggerManualGrant:     ChannelAdmin,
	TriggerManualDeduct:    ChannelAdmin,
	TriggerBalanceFix:      ChannelAdmin,
}

var validChannels = map[Channel]bool{
	ChannelOnboarding:  true,
	ChannelForum:       true,
	ChannelMarketplace: true,
	ChannelMessaging:   true,
	ChannelRecharge:    true,
	ChannelReferral:    true,
	ChannelBot:         true,
	ChannelAdmin:       true,
}

// Valid reports whether c belongs to the closed channel set.
func (c Channel) Valid() bool {
	return validChannels[c]
}

// Valid reports whether t belongs to the closed trigger set.
func (t Trigger) Valid() bool {
	_, ok := triggerChannels[t]
	return ok
}

// Channel returns the channel a trigger belongs to, or "" for unknown triggers.
func (t Trigger) Channel() Channel {
	return triggerChannels[t]
}

// Administrative reports whether the trigger belongs to the admin family.
// Admin triggers are exempt from the per-transaction magnitude ceiling.
func (t Trigger) Administrative() bool {
	return triggerChannels[t] == ChannelAdmin
}

// ValidatePair checks a trigger/channel combination: both must belong to
// their taxonomies and the trigger must actually live in the given channel.
func ValidatePair(trigger Trigger, channel Channel) error {
	if !trigger.Valid() {
		return fmt.Errorf("unknown trigger %q", trigger)
	}
	if !channel.Valid() {
		return fmt.Errorf("unknown channel %q", channel)
	}
	if trigger.Channel() != channel {
		return fmt.Errorf("trigger %q does not belong to channel %q", trigger, channel)
	}
	return nil
}
