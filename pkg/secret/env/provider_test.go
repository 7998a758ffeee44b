package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/keywrapper/pkg/secret"
)

func TestProvider_Get(t *testing.T) {
	t.Setenv("KEYWRAPPER_TEST_REAL_KEY", "sk-real")
	t.Setenv("KEYWRAPPER_TEST_EMPTY", "")

	p := New()
	ctx := context.Background()

	got, err := p.Get(ctx, "KEYWRAPPER_TEST_REAL_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-real", got)

	_, err = p.Get(ctx, "KEYWRAPPER_TEST_EMPTY")
	assert.ErrorIs(t, err, secret.ErrNotFound, "an empty variable counts as not configured")

	_, err = p.Get(ctx, "KEYWRAPPER_TEST_DEFINITELY_UNSET")
	assert.ErrorIs(t, err, secret.ErrNotFound)

	assert.NoError(t, p.Close())
}

func TestProvider_CustomLookup(t *testing.T) {
	p := NewWithLookup(func(name string) (string, bool) {
		if name == "DUMMY_WRAPPER_KEY" {
			return "sk-dummy", true
		}
		return "", false
	})

	got, err := p.Get(context.Background(), "DUMMY_WRAPPER_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-dummy", got)

	_, err = p.Get(context.Background(), "REAL_OPENAI_KEY")
	assert.ErrorIs(t, err, secret.ErrNotFound)
}
