package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPolicyCompute(t *testing.T) {
	p := Default()

	cases := []struct {
		name   string
		kind   Kind
		amount string
		want   string
	}{
		{"deposit is free", KindDeposit, "500.00", "0"},
		{"withdrawal is flat", KindWithdrawal, "100.00", "2.50"},
		{"withdrawal flat regardless of size", KindWithdrawal, "10000.00", "2.50"},
		{"transfer two percent", KindTransfer, "100.00", "2.00"},
		{"transfer rounds to cents", KindTransfer, "10.33", "0.21"},
		{"early withdrawal on principal", KindEarlyWithdrawal, "5000.00", "250.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.Compute(tc.kind, d(tc.amount))
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestPolicyRejectsUnknownKind(t *testing.T) {
	_, err := Default().Compute(Kind("refund"), d("1"))
	require.Error(t, err)
}

func TestPolicyWithZeroWithdrawalFee(t *testing.T) {
	p := Default().WithWithdrawalFee(decimal.Zero)
	got, err := p.Compute(KindWithdrawal, d("600"))
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
