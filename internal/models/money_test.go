package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "0.00", FormatCents(0))
	assert.Equal(t, "12.34", FormatCents(1234))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-1.50", FormatCents(-150))
}

func TestParseCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"12", 1200},
		{"12.3", 1230},
		{"12.34", 1234},
		{"12,34", 1234},
		{"12.345", 1235},
		{"12.344", 1234},
		{".5", 50},
		{"-3.10", -310},
		{" 199.00 ", 19900},
	}
	for _, tt := range tests {
		got, err := ParseCents(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseCents("12.x")
	assert.Error(t, err)
	_, err = ParseCents("abc")
	assert.Error(t, err)
}

func TestPaymentSessionFinal(t *testing.T) {
	s := &PaymentSession{Status: PaymentPending}
	assert.False(t, s.Final())
	s.Status = PaymentAuthorized
	assert.False(t, s.Final())
	s.Status = PaymentCaptured
	assert.True(t, s.Final())
}
