package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestPresentedKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer sk-dummy", "sk-dummy"},
		{"sk-dummy", "sk-dummy"},
		{"bearer   sk-dummy  ", "sk-dummy"},
		{"Token a b c", "c"},
		{"Bearer\tsk-tab", "sk-tab"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := presentedKey(tt.header); got != tt.want {
				t.Errorf("presentedKey(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestPipeline_Order(t *testing.T) {
	want := []string{"gateway_url", "dummy_key", "authorization", "real_key", "distinct_keys", "path"}
	if len(pipeline) != len(want) {
		t.Fatalf("pipeline has %d checks, want %d", len(pipeline), len(want))
	}
	for i, c := range pipeline {
		if c.name != want[i] {
			t.Errorf("pipeline[%d] = %s, want %s", i, c.name, want[i])
		}
	}
}

func TestRunChecks_FirstFailureWins(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)

	tests := []struct {
		name      string
		settings  Settings
		auth      string
		wantCheck string
		wantCode  Code
	}{
		{"all missing", Settings{}, "", "gateway_url", CodeNoEndpointURL},
		{"dummy missing", Settings{GatewayURL: "http://g"}, "", "dummy_key", CodeNoDummyKey},
		{"no auth header", Settings{GatewayURL: "http://g", DummyKey: "d"}, "", "authorization", CodeNoDummyKeyInAuth},
		{"real missing", Settings{GatewayURL: "http://g", DummyKey: "d"}, "Bearer d", "real_key", CodeNoRealKey},
		{"same keys", Settings{GatewayURL: "http://g", DummyKey: "d", RealKey: "d"}, "Bearer d", "distinct_keys", CodeDummyKeyEqualsRealKey},
		{"bad path", Settings{GatewayURL: "http://g", DummyKey: "d", RealKey: "r"}, "Bearer d", "path", CodeUnknownURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := req.Clone(req.Context())
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			f, name := runChecks(pipeline, &inbound{req: r, settings: tt.settings})
			if f == nil {
				t.Fatal("expected a failure")
			}
			if name != tt.wantCheck {
				t.Errorf("failed check = %s, want %s", name, tt.wantCheck)
			}
			if f.Record.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", f.Record.Code, tt.wantCode)
			}
		})
	}
}

func TestRunChecks_Pass(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set("Authorization", "Bearer d")

	f, name := runChecks(pipeline, &inbound{req: r, settings: Settings{GatewayURL: "http://g", DummyKey: "d", RealKey: "r"}})
	if f != nil {
		t.Fatalf("unexpected failure from %s: %v", name, f)
	}
}

func TestUpstreamURL(t *testing.T) {
	tests := []struct {
		name    string
		gateway string
		inbound string
		want    string
		wantErr bool
	}{
		{"chat completions", "https://gateway.ai.example/v1/acct/gw/openai", "/v1/chat/completions", "https://gateway.ai.example/v1/acct/gw/openai/chat/completions", false},
		{"bare prefix", "https://gw.example/openai", "/v1", "https://gw.example/openai", false},
		{"query kept", "http://gw.example", "/v1/files?purpose=batch", "http://gw.example/files?purpose=batch", false},
		{"escaped path kept", "http://gw.example", "/v1/files/a%2Fb", "http://gw.example/files/a%2Fb", false},
		{"gateway query merged", "http://gw.example/openai?api-version=1", "/v1/models?limit=2", "http://gw.example/openai/models?api-version=1&limit=2", false},
		{"at sign stays in path", "https://gateway.example/openai", "/v1@evil.example/x", "https://gateway.example/openai@evil.example/x", false},
		{"at sign without gateway path", "https://gateway.example", "/v1@evil.example/x", "https://gateway.example/@evil.example/x", false},
		{"dotted suffix stays in path", "https://gateway.example/openai", "/v1.evil.example/x", "https://gateway.example/openai.evil.example/x", false},
		{"port-like suffix stays in path", "https://gateway.example", "/v1:4444/x", "https://gateway.example/:4444/x", false},
		{"double slash stays in path", "https://gateway.example", "/v1//evil.example/x", "https://gateway.example//evil.example/x", false},
		{"no scheme", "gw.example", "/v1/models", "", true},
		{"no host", "http://", "/v1/models", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := url.Parse(tt.inbound)
			if err != nil {
				t.Fatal(err)
			}
			got, err := upstreamURL(tt.gateway, in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("upstreamURL() = %s, want %s", got, tt.want)
			}
			gw, _ := url.Parse(tt.gateway)
			if got.Host != gw.Host || got.Scheme != gw.Scheme {
				t.Errorf("upstreamURL() left gateway %s://%s for %s://%s", gw.Scheme, gw.Host, got.Scheme, got.Host)
			}
		})
	}
}
