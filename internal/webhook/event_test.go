package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tcases := []struct {
		name        string
		payload     string
		materialize bool
		err         bool
	}{
		{
			name:        "checkout session completed",
			payload:     `{"type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`,
			materialize: true,
		},
		{
			name:        "short alias",
			payload:     `{"type":"checkout.completed","data":{"object":{"id":"cs_1"}}}`,
			materialize: true,
		},
		{
			name:        "async payment succeeded",
			payload:     `{"type":"checkout.session.async_payment_succeeded","data":{"object":{"id":"cs_1"}}}`,
			materialize: true,
		},
		{
			name:    "unrelated event",
			payload: `{"type":"invoice.paid","data":{"object":{}}}`,
		},
		{
			name:    "invalid json",
			payload: `{`,
			err:     true,
		},
		{
			name:    "missing type",
			payload: `{"data":{}}`,
			err:     true,
		},
		{
			name:    "checkout without session id",
			payload: `{"type":"checkout.session.completed","data":{"object":{}}}`,
			err:     true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tc.payload))
			if tc.err {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.materialize, event.MaterializesOrder())
		})
	}
}

func TestCheckoutSession_UserIdAndEmail(t *testing.T) {
	tcases := []struct {
		name    string
		payload string
		userId  *int
		email   string
	}{
		{
			name:    "numeric user id and customer details email",
			payload: `{"type":"checkout.completed","data":{"object":{"id":"cs_1","metadata":{"user_id":"7"},"customer_email":"fallback@example.com","customer_details":{"email":"buyer@example.com"}}}}`,
			userId:  intPtr(7),
			email:   "buyer@example.com",
		},
		{
			name:    "customer email fallback",
			payload: `{"type":"checkout.completed","data":{"object":{"id":"cs_1","customer_email":"fallback@example.com"}}}`,
			email:   "fallback@example.com",
		},
		{
			name:    "user id as a json number",
			payload: `{"type":"checkout.completed","data":{"object":{"id":"cs_1","metadata":{"user_id":7,"plan":{"tier":"gold"}}}}}`,
			userId:  intPtr(7),
		},
		{
			name:    "fractional user id is ignored",
			payload: `{"type":"checkout.completed","data":{"object":{"id":"cs_1","metadata":{"user_id":7.5}}}}`,
		},
		{
			name:    "non numeric user id is ignored",
			payload: `{"type":"checkout.completed","data":{"object":{"id":"cs_1","metadata":{"user_id":"abc"}}}}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.userId, event.Data.Object.UserId())
			assert.Equal(t, tc.email, event.Data.Object.Email())
		})
	}
}
