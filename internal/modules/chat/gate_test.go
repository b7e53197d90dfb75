package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Check(t *testing.T) {
	g := NewGate()
	tests := []struct {
		name string
		side Side
		text string
		want error
		out  string
	}{
		{"passenger preset", SidePassenger, "I'm on my way", nil, "I'm on my way"},
		{"driver preset", SideDriver, "Trip is starting now", nil, "Trip is starting now"},
		{"trailing whitespace trimmed", SidePassenger, "  Where are you?  \n", nil, "Where are you?"},
		{"phone number", SidePassenger, "call me at 03001234567", ErrContactInfo, ""},
		{"international number", SideDriver, "+9230012", ErrContactInfo, ""},
		{"whatsapp mention", SidePassenger, "WhatsApp me", ErrContactInfo, ""},
		{"wa.me link", SideDriver, "wa.me/923001234567", ErrContactInfo, ""},
		{"free text", SidePassenger, "see you at the gate", ErrNotPreset, ""},
		{"case sensitive", SidePassenger, "okay", ErrNotPreset, ""},
		{"other side's preset", SidePassenger, "Trip is starting now", ErrNotPreset, ""},
		{"driver cannot use passenger preset", SideDriver, "Running late", ErrNotPreset, ""},
		{"empty", SideDriver, "   ", ErrNotPreset, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Check(tt.side, tt.text)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.out, got)
		})
	}
}

func TestGate_ShortDigitRunsAllowedInPresets(t *testing.T) {
	// "5 minutes" must not trip the digit rule.
	_, err := NewGate().Check(SideDriver, "Please be ready in 5 minutes")
	assert.NoError(t, err)
}

func TestPresets_ReturnsCopy(t *testing.T) {
	p := Presets(SideDriver)
	p[0] = "mutated"
	assert.NotEqual(t, "mutated", Presets(SideDriver)[0])
	assert.Contains(t, Presets(SidePassenger), "Thank you!")
}
