package blocklist

import (
	"testing"
)

func TestNoopBlocklist_IsBlocked(t *testing.T) {
	blocklist := &NoopBlocklist{}

	tests := []struct {
		name       string
		queryName  string
	}{
		{name: "returns allow for any name", queryName: "example.com."},
		{name: "returns allow for empty name", queryName: ""},
		{name: "returns allow for another domain", queryName: "blocked.com."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blocklist.IsBlocked(tt.queryName)
			if got.Blocked {
				t.Errorf("IsBlocked(%q).Blocked = true, want false", tt.queryName)
			}
		})
	}
}
