package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gruvbox", "gruvbox"},
		{"Gruvbox_Light", "gruvbox"},
		{"kanagawa-dragon", "kanagawa"},
		{"terminal", "terminal"},
		{"solarized", "kanagawa"},
		{"", "kanagawa"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.in).Name)
		})
	}
}
