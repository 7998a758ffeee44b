package secret

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapProvider struct {
	values   map[string]string
	calls    atomic.Int32
	closeErr error
	closed   bool
}

func (p *mapProvider) Get(ctx context.Context, path string) (string, error) {
	p.calls.Add(1)
	if v, ok := p.values[path]; ok {
		return v, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrNotFound)
}

func (p *mapProvider) Close() error {
	p.closed = true
	return p.closeErr
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref        string
		wantScheme string
		wantPath   string
	}{
		{"env://REAL_OPENAI_KEY", "env", "REAL_OPENAI_KEY"},
		{"vault://secret/data/openai#key", "vault", "secret/data/openai#key"},
		{"https://gateway.ai.example/v1/acct/gw/openai", "", "https://gateway.ai.example/v1/acct/gw/openai"},
		{"http://localhost:8080", "", "http://localhost:8080"},
		{"sk-literal", "", "sk-literal"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			scheme, path := ParseRef(tt.ref)
			assert.Equal(t, tt.wantScheme, scheme)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestManager_Get(t *testing.T) {
	ctx := context.Background()
	m := NewManager()
	m.Register("env", &mapProvider{values: map[string]string{"REAL": "sk-real"}})

	got, err := m.Get(ctx, "env://REAL")
	require.NoError(t, err)
	assert.Equal(t, "sk-real", got)

	got, err = m.Get(ctx, "sk-literal")
	require.NoError(t, err)
	assert.Equal(t, "sk-literal", got, "a reference without scheme is a literal")

	got, err = m.Get(ctx, "https://gw.example/openai")
	require.NoError(t, err)
	assert.Equal(t, "https://gw.example/openai", got)

	_, err = m.Get(ctx, "env://MISSING")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Get(ctx, "gcp://projects/x")
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestManager_Schemes(t *testing.T) {
	m := NewManager()
	m.Register("vault", &mapProvider{})
	m.Register("env", &mapProvider{})
	m.Register("kvs", &mapProvider{})

	assert.Equal(t, []string{"env", "kvs", "vault"}, m.Schemes())
}

func TestManager_Close(t *testing.T) {
	a := &mapProvider{}
	b := &mapProvider{closeErr: errors.New("boom")}

	m := NewManager()
	m.Register("a", a)
	m.Register("b", b)

	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: boom")
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestCachedProvider(t *testing.T) {
	ctx := context.Background()
	inner := &mapProvider{values: map[string]string{"REAL": "sk-real"}}
	p := NewCachedProvider(inner, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := p.Get(ctx, "REAL")
		require.NoError(t, err)
		assert.Equal(t, "sk-real", got)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	p.Invalidate()
	_, err := p.Get(ctx, "REAL")
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedProvider_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &mapProvider{values: map[string]string{}}
	p := NewCachedProvider(inner, time.Minute)

	_, err := p.Get(ctx, "LATER")
	assert.ErrorIs(t, err, ErrNotFound)

	inner.values["LATER"] = "now-set"
	got, err := p.Get(ctx, "LATER")
	require.NoError(t, err)
	assert.Equal(t, "now-set", got)
}

func TestCachedProvider_Expiry(t *testing.T) {
	ctx := context.Background()
	inner := &mapProvider{values: map[string]string{"K": "v"}}
	p := NewCachedProvider(inner, 20*time.Millisecond)

	_, err := p.Get(ctx, "K")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = p.Get(ctx, "K")
	require.NoError(t, err)

	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedProvider_Close(t *testing.T) {
	inner := &mapProvider{}
	require.NoError(t, NewCachedProvider(inner, time.Minute).Close())
	assert.True(t, inner.closed)
}
