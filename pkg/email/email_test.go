package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane.doe@bank.example", "Jane Doe"},
		{"JANE_Q_DOE@bank.example", "Jane Doe"},
		{"ops+alerts@bank.example", "Ops Alerts"},
		{"mia@bank.example", "Mia"},
		{"éloise.martin@banque.example", "Éloise Martin"},
		{"1234@bank.example", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.in))
		})
	}
}
