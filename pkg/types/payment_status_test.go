package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrderPaymentStatus_CanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderPaymentStatus
		ok       bool
	}{
		{OrderPaymentStatusOpen, OrderPaymentStatusCompletelyPaid, true},
		{OrderPaymentStatusOpen, OrderPaymentStatusReviewNecessary, true},
		{OrderPaymentStatusReserved, OrderPaymentStatusCompletelyPaid, true},
		{OrderPaymentStatusReviewNecessary, OrderPaymentStatusCompletelyPaid, true},
		{OrderPaymentStatusCompletelyPaid, OrderPaymentStatusReCrediting, true},
		{OrderPaymentStatusCompletelyPaid, OrderPaymentStatusOpen, false},
		{OrderPaymentStatusCompletelyPaid, OrderPaymentStatusReviewNecessary, false},
		{OrderPaymentStatusCompletelyPaid, OrderPaymentStatusCompletelyPaid, false},
		{OrderPaymentStatusReviewNecessary, OrderPaymentStatusOpen, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestFormatAmount(t *testing.T) {
	require.Equal(t, "19.99 EUR", FormatAmount(1999, "eur"))
	require.Equal(t, "0.05 USD", FormatAmount(5, "usd"))
	require.Equal(t, "-1.00 EUR", FormatAmount(-100, "EUR"))
}
