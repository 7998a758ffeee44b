package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// execute runs the root command with args and returns its output
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
		secretReveal = false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCheckConfig_AllResolved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeFile(t, path, `
credentials:
  gateway_url: https://gateway.ai.example/openai
  dummy_key: sk-dummy-1234567890
  real_key: sk-real-abcdefghijkl
`)

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, true))

	got := out.String()
	assert.Contains(t, got, "✓ Configuration file loaded successfully")
	assert.Contains(t, got, "https://gateway.ai.example/openai")
	assert.Contains(t, got, "sk-d********7890")
	assert.Contains(t, got, "sk-r********ijkl")
	assert.NotContains(t, got, "sk-real-abcdefghijkl")
	assert.Contains(t, got, "Configuration is valid and ready to use")
}

func TestCheckConfig_Unresolved(t *testing.T) {
	t.Setenv("KW_CHECK_REAL", "")
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeFile(t, path, `
credentials:
  gateway_url: https://gateway.ai.example/openai
  dummy_key: sk-dummy
  real_key: env://KW_CHECK_REAL
`)

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, false))
	assert.Contains(t, out.String(), "✗ real_key")
	assert.Contains(t, out.String(), "1 credential(s) unresolved")

	out.Reset()
	err := checkConfig(context.Background(), &out, path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 credential(s) could not be resolved")
}

func TestCheckConfig_ReportsUnsetEnvVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeFile(t, path, `
credentials:
  gateway_url: https://gateway.ai.example/openai
  dummy_key: ${KW_CHECK_UNSET_DUMMY}
  real_key: ${KW_CHECK_UNSET_REAL:-sk-real}
`)

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, false))
	assert.Contains(t, out.String(), "Unset environment variables: KW_CHECK_UNSET_DUMMY\n")
}

func TestCheckConfig_DefaultsWhenMissing(t *testing.T) {
	t.Setenv("AI_GATEWAY_ENDPOINT_URL", "https://gateway.ai.example/openai")
	t.Setenv("DUMMY_WRAPPER_KEY", "sk-dummy")
	t.Setenv("REAL_OPENAI_KEY", "sk-real")

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, filepath.Join(t.TempDir(), "none.yaml"), true))
	assert.Contains(t, out.String(), "Configuration file not found, using defaults")
	assert.Contains(t, out.String(), "Listen: 0.0.0.0:8787")
}

func TestCheckConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeFile(t, path, "server:\n  port: 70000\n")

	err := checkConfig(context.Background(), io.Discard, path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation error")
}

func TestSecretCommands_LevelDB(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywrapper.yaml")
	writeFile(t, path, "secrets:\n  kvs:\n    type: leveldb\n    leveldb:\n      path: "+filepath.Join(dir, "db")+"\n")

	out, err := execute(t, "", "--config", path, "secret", "put", "openai/real", "sk-real-abcdefghijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "reference: kvs://openai/real")

	out, err = execute(t, "sk-dummy-from-stdin\n", "--config", path, "secret", "put", "openai/dummy")
	require.NoError(t, err)
	assert.Contains(t, out, "Stored openai/dummy")

	out, err = execute(t, "", "--config", path, "secret", "get", "openai/real")
	require.NoError(t, err)
	assert.Equal(t, "sk-r********ijkl\n", out)

	out, err = execute(t, "", "--config", path, "secret", "get", "--reveal", "openai/dummy")
	require.NoError(t, err)
	assert.Equal(t, "sk-dummy-from-stdin\n", out)

	out, err = execute(t, "", "--config", path, "secret", "list", "openai/")
	require.NoError(t, err)
	assert.Equal(t, "openai/dummy\nopenai/real\n", out)

	_, err = execute(t, "", "--config", path, "secret", "delete", "openai/dummy")
	require.NoError(t, err)

	_, err = execute(t, "", "--config", path, "secret", "get", "openai/dummy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSecretCommands_ResolvedByCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywrapper.yaml")
	writeFile(t, path, `
credentials:
  gateway_url: https://gateway.ai.example/openai
  dummy_key: kvs://dummy
  real_key: kvs://real
secrets:
  kvs:
    type: leveldb
    leveldb:
      path: `+filepath.Join(dir, "db")+"\n")

	_, err := execute(t, "", "--config", path, "secret", "put", "dummy", "sk-dummy")
	require.NoError(t, err)
	_, err = execute(t, "", "--config", path, "secret", "put", "real", "sk-real")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, checkConfig(context.Background(), &out, path, true))
	assert.Contains(t, out.String(), "✓ real_key")
	assert.Contains(t, out.String(), "Secret KVS: leveldb (namespace: secrets)")
}

func TestSecretCommands_NotConfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeFile(t, path, "server:\n  port: 9000\n")

	_, err := execute(t, "", "--config", path, "secret", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretStoreNotConfigured)

	writeFile(t, path, "secrets:\n  kvs:\n    type: memory\n")
	_, err = execute(t, "", "--config", path, "secret", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory")
}

func TestSecretPut_RejectsEmptyValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keywrapper.yaml")
	writeFile(t, path, "secrets:\n  kvs:\n    type: leveldb\n    leveldb:\n      path: "+filepath.Join(dir, "db")+"\n")

	_, err := execute(t, "\n", "--config", path, "secret", "put", "empty")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty value")
}

func TestReadSecretValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sk-abc\n", "sk-abc"},
		{"sk-abc\r\n", "sk-abc"},
		{"sk-abc", "sk-abc"},
		{"first\nsecond\n", "first"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := readSecretValue(strings.NewReader(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestLoadEnvFile(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{}
		c.Flags().String("env-file", ".env", "")
		return c
	}
	prev := envFile
	t.Cleanup(func() { envFile = prev })

	t.Run("loads without overriding", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		writeFile(t, path, "KW_DOTENV_NEW=from-file\nKW_DOTENV_SET=from-file\n")
		t.Setenv("KW_DOTENV_NEW", "")
		os.Unsetenv("KW_DOTENV_NEW")
		t.Setenv("KW_DOTENV_SET", "from-env")

		envFile = path
		require.NoError(t, loadEnvFile(newCmd(), nil))
		assert.Equal(t, "from-file", os.Getenv("KW_DOTENV_NEW"))
		assert.Equal(t, "from-env", os.Getenv("KW_DOTENV_SET"))
	})

	t.Run("missing default file is ignored", func(t *testing.T) {
		envFile = filepath.Join(t.TempDir(), ".env")
		assert.NoError(t, loadEnvFile(newCmd(), nil))
	})

	t.Run("missing explicit file fails", func(t *testing.T) {
		envFile = filepath.Join(t.TempDir(), "custom.env")
		c := newCmd()
		require.NoError(t, c.Flags().Set("env-file", envFile))
		err := loadEnvFile(c, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "custom.env")
	})

	t.Run("empty disables", func(t *testing.T) {
		envFile = ""
		c := newCmd()
		require.NoError(t, c.Flags().Set("env-file", ""))
		assert.NoError(t, loadEnvFile(c, nil))
	})
}
