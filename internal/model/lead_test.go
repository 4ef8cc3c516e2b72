package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadStatusValues(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status LeadStatus
		want   string
	}{
		{LeadStatusNew, "new"},
		{LeadStatusQualified, "qualified"},
		{LeadStatusEmailed, "emailed"},
		{LeadStatusReplied, "replied"},
		{LeadStatusRejected, "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, string(tt.status))
			assert.True(t, tt.status.Valid())
		})
	}
}

func TestParseLeadStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseLeadStatus("  Emailed ")
	require.NoError(t, err)
	assert.Equal(t, LeadStatusEmailed, s)

	_, err = ParseLeadStatus("archived")
	assert.Error(t, err)
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	allowed := map[[2]LeadStatus]bool{
		{LeadStatusNew, LeadStatusQualified}:       true,
		{LeadStatusQualified, LeadStatusQualified}: true,
		{LeadStatusQualified, LeadStatusEmailed}:   true,
		{LeadStatusEmailed, LeadStatusReplied}:     true,
	}
	for _, from := range LeadStatuses {
		allowed[[2]LeadStatus{from, LeadStatusRejected}] = true
	}

	for _, from := range LeadStatuses {
		for _, to := range LeadStatuses {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				t.Parallel()
				err := ValidateTransition(from, to)
				if allowed[[2]LeadStatus{from, to}] {
					assert.NoError(t, err)
					return
				}
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))

				var te *TransitionError
				require.True(t, errors.As(err, &te))
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)
			})
		}
	}
}

func TestValidateTransition_UnknownStatus(t *testing.T) {
	t.Parallel()

	err := ValidateTransition(LeadStatus("bogus"), LeadStatusRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "bogus -> rejected")
}

func TestDeliveryStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, DeliveryPending.Terminal())
	assert.True(t, DeliverySent.Terminal())
	assert.True(t, DeliveryFailed.Terminal())
}
