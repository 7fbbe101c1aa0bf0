package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSender_Initials(t *testing.T) {
	tests := []struct {
		name   string
		sender Sender
		want   string
	}{
		{"ascii", Sender{FirstName: "ada", LastName: "Admin"}, "AA"},
		{"non-ascii", Sender{FirstName: "Élodie", LastName: "łukasz"}, "ÉŁ"},
		{"first only", Sender{FirstName: "Ørjan"}, "Ø"},
		{"empty", Sender{}, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sender.Initials())
		})
	}
}

func TestNotification_Avatar(t *testing.T) {
	assert.Equal(t, "⚙", Notification{Kind: KindInfo}.Avatar())
	assert.Equal(t, "ÉŁ", Notification{
		Kind:   KindInfo,
		Sender: &Sender{FirstName: "Élodie", LastName: "Łukasz"},
	}.Avatar())
}
