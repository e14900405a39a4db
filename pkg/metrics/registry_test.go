package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := InitRegistry()
	require.NotNil(t, reg)
	assert.True(t, IsEnabled())
	assert.Same(t, reg, GetRegistry())

	// Standard collectors are registered.
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewServerRequiresRegistry(t *testing.T) {
	InitRegistry()
	srv, err := NewServer(0)
	require.NoError(t, err)
	require.NotNil(t, srv)
}
