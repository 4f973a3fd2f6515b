package domain

const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// Point transaction types. Amount sign carries direction; the type carries the reason.
const (
	TxEarnedListing  = "EARNED_LISTING"
	TxEarnedExchange = "EARNED_EXCHANGE"
	TxSpentRequest   = "SPENT_REQUEST"
	TxRefund         = "REFUND"
	TxBonus          = "BONUS"
)

var transactionTypes = map[string]struct{}{
	TxEarnedListing:  {},
	TxEarnedExchange: {},
	TxSpentRequest:   {},
	TxRefund:         {},
	TxBonus:          {},
}

func IsTransactionType(t string) bool {
	_, ok := transactionTypes[t]
	return ok
}

// Book conditions, best to worst.
const (
	ConditionNew        = "NEW"
	ConditionLikeNew    = "LIKE_NEW"
	ConditionVeryGood   = "VERY_GOOD"
	ConditionGood       = "GOOD"
	ConditionAcceptable = "ACCEPTABLE"
)

var Conditions = []string{ConditionNew, ConditionLikeNew, ConditionVeryGood, ConditionGood, ConditionAcceptable}

func IsCondition(c string) bool {
	for _, v := range Conditions {
		if v == c {
			return true
		}
	}
	return false
}

const (
	BookStatusAvailable = "AVAILABLE"
	BookStatusPending   = "PENDING"
	BookStatusExchanged = "EXCHANGED"
	BookStatusWithdrawn = "WITHDRAWN"
)

const (
	RequestStatusPending   = "PENDING"
	RequestStatusAccepted  = "ACCEPTED"
	RequestStatusCompleted = "COMPLETED"
	RequestStatusRejected  = "REJECTED"
	RequestStatusCancelled = "CANCELLED"
	RequestStatusExpired   = "EXPIRED"
)

const (
	PaymentEventProcessed = "PROCESSED"
)

// Stripe event type the payment intake acts on; everything else is acknowledged and ignored.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// Point value bounds for a listing.
const (
	MinPointValue = 50
	MaxPointValue = 500
)

// Notification types pushed to the real-time channel.
const (
	NotifPointsCredited    = "POINTS_CREDITED"
	NotifListingValued     = "LISTING_VALUED"
	NotifExchangeRequested = "EXCHANGE_REQUESTED"
	NotifExchangeAccepted  = "EXCHANGE_ACCEPTED"
	NotifExchangeRejected  = "EXCHANGE_REJECTED"
	NotifExchangeCompleted = "EXCHANGE_COMPLETED"
	NotifExchangeExpired   = "EXCHANGE_EXPIRED"
	NotifExchangeCancelled = "EXCHANGE_CANCELLED"
)
