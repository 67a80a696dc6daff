package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultToolPolicyAllowsOnlyMain(t *testing.T) {
	policy := DefaultToolPolicy()

	require.True(t, policy.Allows(SessionMain))
	require.False(t, policy.Allows(SessionDM))
	require.False(t, policy.Allows(SessionGroup))
	require.False(t, policy.Allows(SessionTopic))
	require.False(t, policy.RequiresApproval)
	require.Equal(t, 30, policy.MaxExecutionTimeSeconds)
}

func TestToolPolicyAllowsCustomSet(t *testing.T) {
	policy := ToolPolicy{
		AllowedSessionTypes: map[SessionType]bool{
			SessionMain: true,
			SessionDM:   true,
		},
	}

	require.True(t, policy.Allows(SessionMain))
	require.True(t, policy.Allows(SessionDM))
	require.False(t, policy.Allows(SessionGroup))
}
