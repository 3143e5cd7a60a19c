package attest_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"payengine/internal/attest"
	"payengine/internal/domain"
)

func TestSoftware_AttestVerify(t *testing.T) {
	ctx := context.Background()
	a := attest.NewSoftware()

	id, err := a.GenerateKey(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	hash := sha256.Sum256([]byte("challenge"))
	blob, err := a.Attest(ctx, id, hash[:])
	require.NoError(t, err)

	st, err := attest.Verify(blob, hash[:])
	require.NoError(t, err)
	require.Equal(t, string(id), st.KeyID)

	other := sha256.Sum256([]byte("other"))
	_, err = attest.Verify(blob, other[:])
	require.Error(t, err)
}

func TestSoftware_UnknownKey(t *testing.T) {
	a := attest.NewSoftware()
	_, err := a.Attest(context.Background(), domain.KeyID("nope"), []byte("x"))
	require.Error(t, err)
}

func TestSoftware_KeyIsSingleUse(t *testing.T) {
	ctx := context.Background()
	a := attest.NewSoftware()

	id, err := a.GenerateKey(ctx)
	require.NoError(t, err)
	hash := sha256.Sum256([]byte("challenge"))

	blob, err := a.Attest(ctx, id, hash[:])
	require.NoError(t, err)
	_, err = attest.Verify(blob, hash[:])
	require.NoError(t, err)

	_, err = a.Attest(ctx, id, hash[:])
	require.Error(t, err)
}
