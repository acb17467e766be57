package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/mimic/internal/config"
	"github.com/xkilldash9x/mimic/internal/proxypool"
)

// writeTestConfig writes a config that keeps all state under a temp dir.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
logger:
  level: fatal
store:
  type: file
  dir: %s
fingerprint:
  catalog_size: 4
  seed: 11
%s`, filepath.Join(dir, "state"), extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// executeCommand runs a fresh command tree and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	out, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "mimic version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, out, "mimic makes automated browser sessions look human.")
	for _, sub := range []string{"fingerprints", "proxies", "cookies", "launch", "serve", "config"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	cfg := writeTestConfig(t, "cookies:\n  strategy: telepathy\n")
	_, err := executeCommand(t, "--config", cfg, "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telepathy")
}

func TestConfigShow_OmitsSecrets(t *testing.T) {
	t.Setenv("MIMIC_API_JWT_SECRET", "super-secret-value")
	cfg := writeTestConfig(t, "")
	out, err := executeCommand(t, "--config", cfg, "config", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "super-secret-value")

	var decoded config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 4, decoded.Fingerprint().CatalogSize)
	assert.Equal(t, "file", decoded.Store().Type)
}

func TestFingerprints_GenerateAndList(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := executeCommand(t, "--config", cfg, "fingerprints", "generate", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "generated 3 fingerprints")

	out, err = executeCommand(t, "--config", cfg, "fp", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4, "header plus three fingerprints")
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
}

func TestCookies_ImportAndList(t *testing.T) {
	cfg := writeTestConfig(t, "")
	export := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(export, []byte(`[
		{"name": "sid", "value": "0123456789abcdef", "domain": ".shop.example.com", "expirationDate": 1893456000.5, "secure": true},
		{"name": "pref", "value": "dark-mode-on", "domain": "example.com", "path": "/"}
	]`), 0o600))

	out, err := executeCommand(t, "--config", cfg, "cookies", "import", export, "--variants", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "example.com: 2 cookies, 3 jars added")

	out, err = executeCommand(t, "--config", cfg, "cookies", "list")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, "sid,pref"))
}

func TestParseCookieExport(t *testing.T) {
	jars, err := parseCookieExport([]byte(`[{"name":"a","value":"1","expirationDate":1700000000}]`), "www.example.co.uk")
	require.NoError(t, err)
	require.Contains(t, jars, "example.co.uk")
	c := jars["example.co.uk"][0]
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, int64(1700000000), c.Expires.Unix())

	_, err = parseCookieExport([]byte(`[{"name":"a","value":"1"}]`), "")
	assert.ErrorContains(t, err, "--domain")

	_, err = parseCookieExport([]byte(`[]`), "")
	assert.Error(t, err)

	_, err = parseCookieExport([]byte(`{`), "")
	assert.Error(t, err)
}

func TestProxies_EmptyPool(t *testing.T) {
	cfg := writeTestConfig(t, "")

	out, err := executeCommand(t, "--config", cfg, "proxies", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "ADDRESS")

	out, err = executeCommand(t, "--config", cfg, "proxies", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "added 0 proxies (0 total)")

	_, err = executeCommand(t, "--config", cfg, "proxies", "best")
	assert.ErrorIs(t, err, proxypool.ErrNoProxyAvailable)
}

func TestServeToken(t *testing.T) {
	cfg := writeTestConfig(t, "")

	_, err := executeCommand(t, "--config", cfg, "serve", "token")
	require.Error(t, err, "no secret configured")

	t.Setenv("MIMIC_API_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	out, err := executeCommand(t, "--config", cfg, "serve", "token", "--subject", "worker-1")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("0123456789abcdef0123456789abcdef"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "worker-1", claims.Subject)
}

func TestLaunch_RejectsBadURL(t *testing.T) {
	cfg := writeTestConfig(t, "")
	_, err := executeCommand(t, "--config", cfg, "launch", "not a url")
	assert.ErrorContains(t, err, "invalid url")

	_, err = executeCommand(t, "--config", cfg, "launch")
	assert.Error(t, err)
}

func TestParseScriptedAction(t *testing.T) {
	tests := []struct {
		in   string
		want scriptedAction
	}{
		{"scroll", scriptedAction{Action: "scroll"}},
		{"click@#submit", scriptedAction{Action: "click", Target: "#submit"}},
		{"type:me@example.com@input[name=email]", scriptedAction{Action: "type:me@example.com", Target: "input[name=email]"}},
		{"move@", scriptedAction{Action: "move"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseScriptedAction(tt.in))
		})
	}
}
