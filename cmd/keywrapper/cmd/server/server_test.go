package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideamans/keywrapper/pkg/config"
	"github.com/ideamans/keywrapper/pkg/shared/kvs"
	"github.com/ideamans/keywrapper/pkg/shared/logging"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestResolveServerConfig(t *testing.T) {
	logger := logging.NewTestLogger()

	tests := []struct {
		name    string
		cfg     Config
		fileCfg config.ServerConfig
		want    ResolvedConfig
	}{
		{
			name: "defaults",
			want: ResolvedConfig{Host: "0.0.0.0", Port: 8787},
		},
		{
			name:    "file values",
			fileCfg: config.ServerConfig{Host: "127.0.0.1", Port: 9000},
			want:    ResolvedConfig{Host: "127.0.0.1", Port: 9000},
		},
		{
			name:    "flags win over file",
			cfg:     Config{Host: "::1", Port: 7000, HostSet: true, PortSet: true},
			fileCfg: config.ServerConfig{Host: "127.0.0.1", Port: 9000},
			want:    ResolvedConfig{Host: "::1", Port: 7000},
		},
		{
			name:    "unset flags are ignored",
			cfg:     Config{Host: "10.0.0.1", Port: 1},
			fileCfg: config.ServerConfig{Host: "127.0.0.1", Port: 9000},
			want:    ResolvedConfig{Host: "127.0.0.1", Port: 9000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveServerConfig(tt.cfg, tt.fileCfg, logger))
		})
	}

	assert.Equal(t, "[::1]:7000", ResolvedConfig{Host: "::1", Port: 7000}.Addr())
}

func TestFormatConfigError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		checkContains []string
	}{
		{
			name: "ValidationError with multiple errors",
			err: &config.ValidationError{Errors: []error{
				config.ErrInvalidPort,
				config.ErrInvalidLogLevel,
			}},
			checkContains: []string{
				"Configuration validation failed for handler with 2 error(s)",
				"1. " + config.ErrInvalidPort.Error(),
				"2. " + config.ErrInvalidLogLevel.Error(),
				"Please fix the errors above",
			},
		},
		{
			name: "single validation error",
			err:  &config.ValidationError{Errors: []error{config.ErrProviderNotConfigured}},
			checkContains: []string{
				"configuration validation error in handler",
				"secret provider is not configured",
			},
		},
		{
			name:          "kvs type",
			err:           kvs.ErrUnsupportedType,
			checkContains: []string{"configuration validation error in handler"},
		},
		{
			name:          "format",
			err:           config.ErrUnsupportedFormat,
			checkContains: []string{"rename the configuration file"},
		},
		{
			name:          "generic",
			err:           errors.New("boom"),
			checkContains: []string{"failed to initialize handler: boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatConfigError("handler", tt.err).Error()
			for _, want := range tt.checkContains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

// runServer starts Run on a random port and returns its base URL
func runServer(t *testing.T, configPath string) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{
			ConfigPath: configPath,
			Logger:     logging.NewTestLogger(),
			Version:    "test",
			Listener:   listener,
		})
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	return "http://" + listener.Addr().String()
}

func TestRun_ForwardsWithConfigFile(t *testing.T) {
	var (
		mu      sync.Mutex
		gotAuth string
		gotPath string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"object":"list","data":[]}`)
	}))
	defer gateway.Close()

	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeConfig(t, path, `
credentials:
  gateway_url: `+gateway.URL+`/openai
  dummy_key: sk-dummy
  real_key: sk-real
`)

	base := runServer(t, path)

	req, err := http.NewRequest(http.MethodGet, base+"/v1/models", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-dummy")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"object":"list","data":[]}`, string(body))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer sk-real", gotAuth)
	assert.Equal(t, "/openai/models", gotPath)
}

func TestRun_DefaultConfigWithoutEnvironment(t *testing.T) {
	t.Setenv(config.EnvGatewayURL, "")
	t.Setenv(config.EnvDummyKey, "")
	t.Setenv(config.EnvRealKey, "")

	base := runServer(t, filepath.Join(t.TempDir(), "missing.yaml"))

	resp, err := http.Get(base + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "wrapper_custom_no_endpoint_url_in_env")
}

func TestRun_NoHealthEndpoint(t *testing.T) {
	t.Setenv(config.EnvGatewayURL, "http://127.0.0.1:1")
	t.Setenv(config.EnvDummyKey, "sk-dummy")
	t.Setenv(config.EnvRealKey, "sk-real")

	base := runServer(t, "")

	req, err := http.NewRequest(http.MethodGet, base+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sk-dummy")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), `"code":"unknown_url"`)
}

func TestRun_InvalidConfigFailsStartup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeConfig(t, path, "server:\n  port: 70000\nlogging:\n  level: loud\n")

	err := Run(context.Background(), Config{ConfigPath: path, Logger: logging.NewTestLogger()})
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "Configuration validation failed for handler with 2 error(s)"), err.Error())
}

func TestRun_HotReload(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer gateway.Close()

	path := filepath.Join(t.TempDir(), "keywrapper.yaml")
	writeConfig(t, path, `
credentials:
  gateway_url: `+gateway.URL+`
  dummy_key: sk-old
  real_key: sk-real
`)
	base := runServer(t, path)

	status := func(key string) int {
		req, _ := http.NewRequest(http.MethodGet, base+"/v1/models", nil)
		req.Header.Set("Authorization", "Bearer "+key)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusNoContent, status("sk-old"))

	writeConfig(t, path, `
credentials:
  gateway_url: `+gateway.URL+`
  dummy_key: sk-new
  real_key: sk-real
`)

	assert.Eventually(t, func() bool {
		return status("sk-new") == http.StatusNoContent
	}, 3*time.Second, 50*time.Millisecond)
	assert.Equal(t, http.StatusBadRequest, status("sk-old"), "the old dummy key is rejected after reload")
}
