package payments

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"bookswap/internal/domain"
	"bookswap/internal/ledger"
	"bookswap/internal/ledger/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testSecret = "whsec_test_secret"

type recordingNotifier struct {
	credited []int64
	err      error
}

func (r *recordingNotifier) NotifyPointsCredited(_ context.Context, _ uint, points, _ int64) error {
	r.credited = append(r.credited, points)
	return r.err
}

func checkoutEvent(t *testing.T, id, eventType string, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       "cs_test_1",
				"object":   "checkout.session",
				"metadata": metadata,
			},
		},
	})
	require.NoError(t, err)
	return body
}

func sign(payload []byte) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret}).Header
}

func newIntake(t *testing.T, secret string, users ...uint) (*Intake, *ledger.Service, *memory.Store, *recordingNotifier) {
	t.Helper()
	store := memory.New()
	for _, id := range users {
		store.AddUser(id)
	}
	svc := ledger.NewService(store, nil)
	n := &recordingNotifier{}
	return NewIntake(secret, svc, n, nil), svc, store, n
}

func TestPurchaseIsCreditedOnce(t *testing.T) {
	in, svc, store, n := newIntake(t, testSecret, 42)
	ctx := context.Background()
	payload := checkoutEvent(t, "evt_1", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "42", "points": "1000"})

	out := in.HandlePaymentCompleted(ctx, payload, sign(payload))
	require.Equal(t, OutcomeCredited, out.Kind, "err: %v", out.Err)
	assert.Equal(t, int64(1000), out.Balance)

	rows := store.Transactions(42)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TxBonus, rows[0].Type)
	assert.Equal(t, int64(1000), rows[0].Amount)
	assert.Equal(t, "Purchased 1,000 points", rows[0].Description)

	again := in.HandlePaymentCompleted(ctx, payload, sign(payload))
	assert.Equal(t, OutcomeDuplicate, again.Kind)
	assert.NoError(t, again.Err)

	bal, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), bal)
	assert.Len(t, store.Transactions(42), 1)
	assert.Equal(t, []int64{1000}, n.credited)
}

func TestMissingUserIDIsInvalid(t *testing.T) {
	in, _, store, _ := newIntake(t, testSecret, 42)
	payload := checkoutEvent(t, "evt_2", domain.EventCheckoutSessionCompleted, map[string]string{"points": "500"})

	out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeInvalid, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrValidation)
	assert.Zero(t, store.PaymentEvents())
}

func TestMetadataValidation(t *testing.T) {
	in, _, _, _ := newIntake(t, testSecret, 42)
	cases := map[string]map[string]string{
		"zero points":     {"userId": "42", "points": "0"},
		"negative points": {"userId": "42", "points": "-10"},
		"text points":     {"userId": "42", "points": "lots"},
		"bad user":        {"userId": "abc", "points": "100"},
		"zero user":       {"userId": "0", "points": "100"},
	}
	for name, md := range cases {
		t.Run(name, func(t *testing.T) {
			payload := checkoutEvent(t, "evt_"+name, domain.EventCheckoutSessionCompleted, md)
			out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
			assert.Equal(t, OutcomeInvalid, out.Kind)
			assert.ErrorIs(t, out.Err, domain.ErrValidation)
		})
	}
}

func TestBadSignatureIsRejected(t *testing.T) {
	in, _, store, _ := newIntake(t, testSecret, 42)
	payload := checkoutEvent(t, "evt_3", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "42", "points": "1000"})

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_other"}).Header
	for _, sig := range []string{"", "t=1,v1=deadbeef", forged} {
		out := in.HandlePaymentCompleted(context.Background(), payload, sig)
		assert.Equal(t, OutcomeRejected, out.Kind)
		assert.ErrorIs(t, out.Err, domain.ErrUnauthenticated)
	}
	assert.Empty(t, store.Transactions(42))
}

func TestUnknownUserIsReportedNotClaimed(t *testing.T) {
	in, _, store, _ := newIntake(t, testSecret)
	payload := checkoutEvent(t, "evt_4", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "77", "points": "500"})

	out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeUnknownUser, out.Kind)
	assert.ErrorIs(t, out.Err, domain.ErrNotFound)
	assert.Equal(t, uint(77), out.UserID)
	assert.Zero(t, store.PaymentEvents())
}

func TestOtherEventTypesAreIgnored(t *testing.T) {
	in, _, store, _ := newIntake(t, testSecret, 42)
	payload := checkoutEvent(t, "evt_5", "payment_intent.created", map[string]string{"userId": "42", "points": "1000"})

	out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeIgnored, out.Kind)
	assert.Empty(t, store.Transactions(42))
}

func TestUnsignedModeAcceptsRawEvents(t *testing.T) {
	in, _, _, _ := newIntake(t, "", 42)
	require.True(t, in.Unsigned())
	payload := checkoutEvent(t, "evt_6", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "42", "points": "500"})

	out := in.HandlePaymentCompleted(context.Background(), payload, "")
	assert.Equal(t, OutcomeCredited, out.Kind)

	garbage := in.HandlePaymentCompleted(context.Background(), []byte("not json"), "")
	assert.Equal(t, OutcomeRejected, garbage.Kind)
}

type failingCreditor struct{}

func (failingCreditor) ApplyPaymentCredit(context.Context, string, uint, int64, string) (ledger.Result, error) {
	return ledger.Result{}, errors.New("deadlock found when trying to get lock")
}

func TestStorageFailureIsRetryable(t *testing.T) {
	in := NewIntake(testSecret, failingCreditor{}, nil, nil)
	payload := checkoutEvent(t, "evt_7", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "42", "points": "500"})

	out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Error(t, out.Err)
}

func TestNotificationFailureDoesNotUndoCredit(t *testing.T) {
	in, svc, _, n := newIntake(t, testSecret, 42)
	n.err = errors.New("push unavailable")
	payload := checkoutEvent(t, "evt_8", domain.EventCheckoutSessionCompleted, map[string]string{"userId": "42", "points": "500"})

	out := in.HandlePaymentCompleted(context.Background(), payload, sign(payload))
	assert.Equal(t, OutcomeCredited, out.Kind)
	bal, _ := svc.GetBalance(context.Background(), 42)
	assert.Equal(t, int64(500), bal)
}

func TestFormatPoints(t *testing.T) {
	assert.Equal(t, "500", formatPoints(500))
	assert.Equal(t, "1,000", formatPoints(1000))
	assert.Equal(t, "12,500", formatPoints(12500))
	assert.Equal(t, "1,000,000", formatPoints(1000000))
}
