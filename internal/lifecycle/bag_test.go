package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closer struct {
	closed int
	err    error
}

func (c *closer) Close() error {
	c.closed++
	return c.err
}

func TestDisposeRunsInReverseOrder(t *testing.T) {
	var bag Bag
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		bag.Add(func() error {
			order = append(order, i)
			return nil
		})
	}

	assert.NoError(t, bag.Dispose())
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.Equal(t, 0, bag.Len())
}

func TestDisposeJoinsErrorsAndKeepsGoing(t *testing.T) {
	var bag Bag
	errA := errors.New("a")
	errB := errors.New("b")
	c := &closer{}

	bag.Add(func() error { return errA })
	bag.AddCloser(c)
	bag.Add(func() error { return errB })

	err := bag.Dispose()
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, c.closed)
}

func TestDisposeIsIdempotent(t *testing.T) {
	var bag Bag
	c := &closer{}
	bag.AddCloser(c)

	assert.NoError(t, bag.Dispose())
	assert.NoError(t, bag.Dispose())
	assert.Equal(t, 1, c.closed)
}

func TestAddAfterDisposeReleasesImmediately(t *testing.T) {
	var bag Bag
	assert.NoError(t, bag.Dispose())

	c := &closer{}
	bag.AddCloser(c)
	assert.Equal(t, 1, c.closed)
	assert.Equal(t, 0, bag.Len())
}
