package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPager(t *testing.T) {
	tests := []struct {
		name              string
		total, page, size int
		wantPage, wantPgs int
		wantOffset        int
		wantNext          bool
	}{
		{"empty", 0, 1, 20, 1, 0, 0, false},
		{"first page", 95, 1, 20, 1, 5, 0, true},
		{"last page", 95, 5, 20, 5, 5, 80, false},
		{"past the end", 95, 9, 20, 9, 5, 160, false},
		{"middle", 300, 8, 20, 8, 15, 140, true},
		{"negative page", 10, -3, 5, 1, 2, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPager(tt.total, tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.CurrentPage)
			assert.Equal(t, tt.wantPgs, p.TotalPages)
			assert.Equal(t, tt.wantOffset, p.Offset())
			assert.Equal(t, tt.wantNext, p.HasNext())
		})
	}
}

func TestNewPager_ZeroSize(t *testing.T) {
	p := NewPager(45, 2, 0)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 3, p.TotalPages)
}

func TestParseParams(t *testing.T) {
	page, size := ParseParams("", "")
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)

	page, size = ParseParams("3", "50")
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, size)

	page, size = ParseParams("-1", "100000")
	assert.Equal(t, 1, page)
	assert.Equal(t, MaxPageSize, size)

	page, size = ParseParams("abc", "0")
	assert.Equal(t, 1, page)
	assert.Equal(t, DefaultPageSize, size)
}
