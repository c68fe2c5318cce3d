package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/wcctgo/internal/grid"
)

func TestNew(t *testing.T) {
	z, err := New([]int{2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 6, z.Len())
	assert.Equal(t, []int{2, 3}, z.Shape())

	_, err = New([]int{2, 3}, []float64{1})
	assert.ErrorIs(t, err, ErrShape)

	_, err = New([]int{2, 0}, nil)
	assert.ErrorIs(t, err, ErrShape)
}

func TestGridRoundTrip(t *testing.T) {
	g, err := grid.FromData(2, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	x := FromGrid(g)
	assert.Equal(t, []int{1, 1, 2, 2}, x.Shape())
	x.Data()[0] = 9
	assert.Equal(t, 1.0, g.At(0, 0), "FromGrid must copy")

	back, err := x.ToGrid()
	require.NoError(t, err)
	assert.Equal(t, []float64{9, 2, 3, 4}, back.Data)

	_, err = Scalar(1).ToGrid()
	assert.ErrorIs(t, err, ErrShape)
}

func TestCloneAndEqual(t *testing.T) {
	x, err := New([]int{1, 2}, []float64{1, 2})
	require.NoError(t, err)
	y := x.Clone()
	assert.True(t, x.Equal(y))

	y.Data()[1] = 3
	assert.False(t, x.Equal(y))
	assert.False(t, x.Equal(Scalar(1)))

	shape := x.Shape()
	shape[0] = 7
	assert.Equal(t, []int{1, 2}, x.Shape())
}
