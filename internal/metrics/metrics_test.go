package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	Register()

	before := testutil.ToFloat64(bookingClaims.WithLabelValues("claimed"))
	IncBookingClaim("claimed")
	after := testutil.ToFloat64(bookingClaims.WithLabelValues("claimed"))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(reconciliations.WithLabelValues("confirmed"))
	IncReconciliation("confirmed")
	after = testutil.ToFloat64(reconciliations.WithLabelValues("confirmed"))
	assert.Equal(t, before+1, after)

	SetWebhookQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(webhookQueueDepth))
}
