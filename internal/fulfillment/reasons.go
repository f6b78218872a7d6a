package fulfillment

// Reason tags the branch that settled an event. It is diagnostic only.
type Reason string

const (
	ReasonAlreadyBoundBare          Reason = "already_bound_bare"
	ReasonBindAndFulfillPendingBare Reason = "bind_and_fulfill_pending_bare"
	ReasonBindRewardBare            Reason = "bind_reward_bare"
	ReasonBindRewardFailedBare      Reason = "bind_reward_failed_bare"
	ReasonBindExistsBare            Reason = "bind_exists_bare"
	ReasonBindInstructions          Reason = "bind_instructions"

	ReasonAlreadyBoundSame      Reason = "already_bound_same"
	ReasonAlreadyBoundDiff      Reason = "already_bound_diff"
	ReasonBindExistsExplicit    Reason = "bind_exists_explicit"
	ReasonBindAndFulfillPending Reason = "bind_and_fulfill_pending"
	ReasonBindReward            Reason = "bind_reward"
	ReasonBindRewardFailed      Reason = "bind_reward_failed"

	ReasonSelfBlessBlock           Reason = "self_bless_block"
	ReasonSenderRateLimit          Reason = "sender_rate_limit"
	ReasonRecipientRateLimit       Reason = "recipient_rate_limit"
	ReasonBlessSent                Reason = "bless_sent"
	ReasonBlessFailed              Reason = "bless_failed"
	ReasonNeedsBindExistingPending Reason = "needs_bind_existing_pending"
	ReasonNeedsBindEnqueued        Reason = "needs_bind_enqueued"

	ReasonUnrecognized           Reason = "unrecognized"
	ReasonSelfMention            Reason = "self_mention"
	ReasonTransferNeedsReconcile Reason = "transfer_needs_reconcile"
)

// bindReasons are the reason tags of one bind flavour.
type bindReasons struct {
	fulfill Reason
	reward  Reason
	failed  Reason
}

var (
	bareBindReasons = bindReasons{
		fulfill: ReasonBindAndFulfillPendingBare,
		reward:  ReasonBindRewardBare,
		failed:  ReasonBindRewardFailedBare,
	}
	explicitBindReasons = bindReasons{
		fulfill: ReasonBindAndFulfillPending,
		reward:  ReasonBindReward,
		failed:  ReasonBindRewardFailed,
	}
)
