package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79/webhook"

	"castline/internal/payment/gateway"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestWebhookVerifierParse(t *testing.T) {
	v := NewWebhookVerifier(testSecret)

	t.Run("completed paid session succeeds", func(t *testing.T) {
		payload := `{"id":"evt_1","object":"event","type":"checkout.session.completed",` +
			`"data":{"object":{"id":"cs_test_1","object":"checkout.session","payment_status":"paid"}}}`

		ev, err := v.Parse([]byte(payload), sign(t, payload))
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, "evt_1", ev.EventID)
		assert.Equal(t, "cs_test_1", ev.PaymentReference)
		assert.Equal(t, gateway.OutcomeSucceeded, ev.Outcome)
	})

	t.Run("expired session", func(t *testing.T) {
		payload := `{"id":"evt_2","object":"event","type":"checkout.session.expired",` +
			`"data":{"object":{"id":"cs_test_2","object":"checkout.session","payment_status":"unpaid"}}}`

		ev, err := v.Parse([]byte(payload), sign(t, payload))
		require.NoError(t, err)
		require.NotNil(t, ev)
		assert.Equal(t, gateway.OutcomeExpired, ev.Outcome)
	})

	t.Run("unpaid completion waits for async result", func(t *testing.T) {
		payload := `{"id":"evt_3","object":"event","type":"checkout.session.completed",` +
			`"data":{"object":{"id":"cs_test_3","object":"checkout.session","payment_status":"unpaid"}}}`

		ev, err := v.Parse([]byte(payload), sign(t, payload))
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("unrelated event type is ignored", func(t *testing.T) {
		payload := `{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`

		ev, err := v.Parse([]byte(payload), sign(t, payload))
		require.NoError(t, err)
		assert.Nil(t, ev)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := `{"id":"evt_5","object":"event","type":"checkout.session.expired","data":{"object":{}}}`

		_, err := v.Parse([]byte(payload), "t=1,v1=deadbeef")
		assert.Error(t, err)
	})
}
