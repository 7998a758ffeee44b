package proxy

import "context"

// Settings is the configuration bundle a single request is validated and
// forwarded with. A zero field means "not configured".
type Settings struct {
	GatewayURL string // Upstream gateway base URL (AI_GATEWAY_ENDPOINT_URL)
	DummyKey   string // Substitute credential clients present (DUMMY_WRAPPER_KEY)
	RealKey    string // Credential sent upstream (REAL_OPENAI_KEY)
}

// SettingsSource yields the Settings for one request. It is called once per
// request and the result is not shared with other requests.
type SettingsSource interface {
	Settings(ctx context.Context) Settings
}

// StaticSettings is a SettingsSource that always returns the same values
type StaticSettings Settings

// Settings implements SettingsSource
func (s StaticSettings) Settings(context.Context) Settings {
	return Settings(s)
}

// SettingsFunc adapts a function to SettingsSource
type SettingsFunc func(ctx context.Context) Settings

// Settings implements SettingsSource
func (f SettingsFunc) Settings(ctx context.Context) Settings {
	return f(ctx)
}
