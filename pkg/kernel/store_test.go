package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Abraxas-365/tenantry/pkg/kernel"
)

func TestNewPaginatedCountsPages(t *testing.T) {
	p := kernel.NewPaginated([]string{"a", "b"}, 2, 2, 5)

	assert.Equal(t, 3, p.Page.Pages)
	assert.True(t, p.HasNext())
	assert.True(t, p.HasPrevious())
	assert.False(t, p.Empty)

	empty := kernel.NewPaginated[string](nil, 1, 10, 0)
	assert.True(t, empty.Empty)
	assert.NotNil(t, empty.Items)
	assert.False(t, empty.HasNext())
}

func TestPaginationOptionsNormalize(t *testing.T) {
	o := kernel.PaginationOptions{}.Normalize()
	assert.Equal(t, kernel.PaginationOptions{Page: 1, PageSize: kernel.DefaultPageSize}, o)
	assert.Equal(t, 0, o.Offset())

	o = kernel.PaginationOptions{Page: 3, PageSize: 500}.Normalize()
	assert.Equal(t, kernel.MaxPageSize, o.PageSize)
	assert.Equal(t, 200, o.Offset())
}
