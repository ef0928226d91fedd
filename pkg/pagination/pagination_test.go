package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDefaults(t *testing.T) {
	p := Normalize(0, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.Limit)
}

func TestNormalizeClamps(t *testing.T) {
	p := Normalize(-5, 1000)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxLimit, p.Limit)

	p = Normalize(3, 50)
	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.Limit)
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, Normalize(1, 20).Offset())
	assert.Equal(t, 40, Normalize(3, 20).Offset())
}

func TestNewMetaCeilDivision(t *testing.T) {
	cases := []struct {
		total int64
		limit int
		pages int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{101, 20, 6},
	}
	for _, c := range cases {
		meta := NewMeta(Normalize(1, c.limit), c.total)
		assert.Equal(t, c.pages, meta.TotalPages, "total=%d limit=%d", c.total, c.limit)
	}
}

func TestNewMetaPageBoundaries(t *testing.T) {
	// 第一页：有后页无前页
	meta := NewMeta(Normalize(1, 20), 101)
	assert.True(t, meta.HasNext)
	assert.False(t, meta.HasPrev)

	// 最后一页：有前页无后页
	meta = NewMeta(Normalize(6, 20), 101)
	assert.False(t, meta.HasNext)
	assert.True(t, meta.HasPrev)

	// 空结果集：两个方向都没有
	meta = NewMeta(Normalize(1, 20), 0)
	assert.False(t, meta.HasNext)
	assert.False(t, meta.HasPrev)
}
