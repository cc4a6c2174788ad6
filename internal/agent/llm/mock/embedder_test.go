package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedQuery(ctx, "hello world")
	require.NoError(t, err)
	b, err := m.EmbedDocuments(ctx, []string{"hello world", "other"})
	require.NoError(t, err)

	assert.Len(t, a, defaultDimensions)
	assert.Equal(t, a, b[0])
	assert.NotEqual(t, a, b[1])
	assert.Equal(t, 2, m.CallCount())

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)
}
