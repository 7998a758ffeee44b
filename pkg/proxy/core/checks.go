package proxy

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// PathPrefix is the only route the handler serves
const PathPrefix = "/v1"

// inbound is what every check sees: the request and its resolved settings
type inbound struct {
	req      *http.Request
	settings Settings
}

// check returns a Failure to stop the request, or nil to continue
type check struct {
	name string
	run  func(in *inbound) *Failure
}

// pipeline is evaluated in order and the first failure wins.
// The real-key checks come after authentication so an unauthenticated caller
// cannot probe whether the real key is configured.
var pipeline = []check{
	{name: "gateway_url", run: requireGatewayURL},
	{name: "dummy_key", run: requireDummyKey},
	{name: "authorization", run: authenticate},
	{name: "real_key", run: requireRealKey},
	{name: "distinct_keys", run: requireDistinctKeys},
	{name: "path", run: requirePathPrefix},
}

// runChecks evaluates checks in order and returns the first failure and the
// name of the check that produced it
func runChecks(checks []check, in *inbound) (*Failure, string) {
	for _, c := range checks {
		if f := c.run(in); f != nil {
			return f, c.name
		}
	}
	return nil, ""
}

func requireGatewayURL(in *inbound) *Failure {
	if in.settings.GatewayURL == "" {
		return NewFailure(CodeNoEndpointURL)
	}
	return nil
}

func requireDummyKey(in *inbound) *Failure {
	if in.settings.DummyKey == "" {
		return NewFailure(CodeNoDummyKey)
	}
	return nil
}

func authenticate(in *inbound) *Failure {
	header := in.req.Header.Get("Authorization")
	if header == "" {
		return NewFailure(CodeNoDummyKeyInAuth)
	}
	if !equalKeys(presentedKey(header), in.settings.DummyKey) {
		return NewFailure(CodeInvalidDummyKey)
	}
	return nil
}

func requireRealKey(in *inbound) *Failure {
	if in.settings.RealKey == "" {
		return NewFailure(CodeNoRealKey)
	}
	return nil
}

func requireDistinctKeys(in *inbound) *Failure {
	if equalKeys(in.settings.RealKey, in.settings.DummyKey) {
		return NewFailure(CodeDummyKeyEqualsRealKey)
	}
	return nil
}

func requirePathPrefix(in *inbound) *Failure {
	if !strings.HasPrefix(in.req.URL.EscapedPath(), PathPrefix) {
		return NewFailure(CodeUnknownURL)
	}
	return nil
}

// presentedKey returns the last whitespace-separated segment of an
// Authorization header, so "Bearer sk-x" and "sk-x" both yield "sk-x".
func presentedKey(header string) string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// equalKeys is exact string equality in constant time
func equalKeys(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
