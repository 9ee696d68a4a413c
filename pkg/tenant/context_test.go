package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantID(t *testing.T) {
	_, err := TenantID(context.Background())
	assert.ErrorIs(t, err, ErrNoTenantInContext)

	_, err = TenantID(WithTenantID(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoTenantInContext)

	id, err := TenantID(WithTenantID(context.Background(), "tenant-a"))
	assert.NoError(t, err)
	assert.Equal(t, "tenant-a", id)
}
