package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopePermits(t *testing.T) {
	s := Users(1, 6, 5, 5, 3)
	assert.Equal(t, []int64{3, 5, 6}, s.UserIDs)

	assert.True(t, s.Permits(1, 5))
	assert.False(t, s.Permits(1, 4))
	assert.False(t, s.Permits(2, 5))

	assert.True(t, Tenant(1).Permits(1, 12345))
	assert.False(t, Tenant(1).Permits(2, 1))

	assert.True(t, Universal().Permits(7, 7))

	var none *Scope
	assert.False(t, none.Permits(1, 1))
	assert.True(t, none.IsEmpty())
	assert.True(t, (&Scope{}).IsEmpty())
	assert.True(t, Users(1).IsEmpty())
}

func TestScopeEqual(t *testing.T) {
	assert.True(t, Users(1, 2, 3).Equal(Users(1, 3, 2)))
	assert.False(t, Users(1, 2, 3).Equal(Users(2, 2, 3)))
	assert.False(t, Users(1, 2).Equal(Tenant(1)))
	assert.True(t, Universal().Equal(Universal()))
}
