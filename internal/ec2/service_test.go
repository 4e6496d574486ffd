package ec2

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	cred, err := svc.CreateCredential(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Len(t, cred.Access, 32)
	assert.Len(t, cred.Secret, 32)
	assert.Equal(t, "u1", cred.UserID)
	assert.Equal(t, "t1", cred.TenantID)

	// A second credential for the same user against another tenant coexists.
	other, err := svc.CreateCredential(ctx, "u1", "t2")
	require.NoError(t, err)
	assert.NotEqual(t, cred.Access, other.Access)

	got, err := svc.GetCredential(ctx, cred.Access)
	require.NoError(t, err)
	assert.Equal(t, cred, got)

	list, err := svc.ListCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, svc.DeleteCredential(ctx, cred.Access))
	_, err = svc.GetCredential(ctx, cred.Access)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCredentialValidatesInput(t *testing.T) {
	svc, err := NewService(NewMemoryStore())
	require.NoError(t, err)

	_, err = svc.CreateCredential(context.Background(), "", "t1")
	assert.Error(t, err)
	_, err = svc.CreateCredential(context.Background(), "u1", " ")
	assert.Error(t, err)
}
