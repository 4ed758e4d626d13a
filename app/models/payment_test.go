package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminalPaid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "PAID", want: true},
		{in: "paid", want: true},
		{in: " Completed ", want: true},
		{in: "SETTLED", want: true},
		{in: "confirmed", want: true},
		{in: "PENDING", want: false},
		{in: "UNPAID", want: false},
		{in: "EXPIRED", want: false},
		{in: "", want: false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTerminalPaid(tt.in), "IsTerminalPaid(%q)", tt.in)
	}
}

func TestIsResolved(t *testing.T) {
	assert.True(t, IsResolved("paid"))
	assert.True(t, IsResolved("expired"))
	assert.True(t, IsResolved("FAILED"))
	assert.False(t, IsResolved("PENDING"))
	assert.False(t, IsResolved("PROCESSING"))
}

func TestTerminalPaidStatusesIsCopy(t *testing.T) {
	s := TerminalPaidStatuses()
	s[0] = "MUTATED"
	assert.Equal(t, PaymentStatusPaid, TerminalPaidStatuses()[0])
	assert.Len(t, ResolvedStatuses(), 7)
}

func TestPaymentParsedMetadata(t *testing.T) {
	p := &Payment{Metadata: `{"order":"A-1","qty":2}`}
	md := p.ParsedMetadata()
	require.NotNil(t, md)
	assert.Equal(t, "A-1", md["order"])
	assert.Equal(t, float64(2), md["qty"])

	p.Metadata = "{not json"
	assert.Nil(t, p.ParsedMetadata())

	p.Metadata = ""
	assert.Nil(t, p.ParsedMetadata())
}

func TestEncodeMetadata(t *testing.T) {
	s, err := EncodeMetadata(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	s, err = EncodeMetadata(map[string]any{"a": "b"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, s)
}

func TestLnurlSessionExpiry(t *testing.T) {
	now := time.Now()
	auth := &LnurlAuthSession{Status: LnurlStatusPending, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, auth.ExpiredAt(now))

	auth.Status = LnurlStatusVerified
	assert.False(t, auth.ExpiredAt(now), "verified sessions are terminal")

	w := &LnurlWithdrawSession{Status: LnurlStatusPending, ExpiresAt: now.Add(time.Minute)}
	assert.False(t, w.ExpiredAt(now))
	w.ExpiresAt = now.Add(-time.Minute)
	assert.True(t, w.ExpiredAt(now))
	w.Status = LnurlStatusPaid
	assert.False(t, w.ExpiredAt(now))
}
