package slug_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/linkshelf/linkshelf/pkg/slug"
)

func TestMake(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"Pro", 0, "pro"},
		{"  Team Plus  ", 0, "team-plus"},
		{"Café Crème", 0, "cafe-creme"},
		{"Start-up & Scale!!", 0, "start-up-scale"},
		{"---", 0, ""},
		{"日本 plan", 0, "plan"},
		{"Enterprise Annual", 10, "enterprise"},
		{"ab cd ef", 5, "ab-cd"},
		{"ab cd", 3, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := slug.Make(tt.in, tt.maxLen)
			assert.Equal(t, tt.want, got)
			if got != "" {
				assert.True(t, slug.Valid(got))
			}
		})
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"pro", "team-plus", "v2"} {
		assert.True(t, slug.Valid(s), s)
	}
	for _, s := range []string{"", "Pro", "-pro", "pro-", "team--plus", "team plus", "café"} {
		assert.False(t, slug.Valid(s), s)
	}
}
