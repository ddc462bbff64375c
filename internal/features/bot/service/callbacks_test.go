package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitConfigData(t *testing.T) {
	tests := []struct {
		data               string
		action, key, value string
	}{
		{"menu", "menu", "", ""},
		{"menu:base", "menu", "base", ""},
		{"toggle:busy_mode:true", "toggle", "busy_mode", "true"},
		{"cl:backup_group_id", "cl", "backup_group_id", ""},
		{"add:ar", "add", "ar", ""},
		// List item ids may carry separators of their own.
		{"del:ar:550e8400-e29b:41d4", "del", "ar", "550e8400-e29b:41d4"},
	}

	for _, tt := range tests {
		action, key, value := splitConfigData(tt.data)
		assert.Equal(t, tt.action, action, tt.data)
		assert.Equal(t, tt.key, key, tt.data)
		assert.Equal(t, tt.value, value, tt.data)
	}
}
