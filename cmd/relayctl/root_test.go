package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulatminnakhmetov/media-relay/internal/config"
	"github.com/bulatminnakhmetov/media-relay/internal/handler/auth"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

type stubRelayer struct {
	res     relay.Result
	gotReq  relay.UploadRequest
	gotConf relay.BackendConfig
}

func (s *stubRelayer) Relay(ctx context.Context, req relay.UploadRequest, cfg relay.BackendConfig) relay.Result {
	s.gotReq = req
	s.gotConf = cfg
	return s.res
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.FromEnv(func(key string) string {
		return map[string]string{
			"JWT_SECRET":    "test-secret",
			"IMGBB_API_KEY": "imgbb-key",
		}[key]
	})
	require.NoError(t, err)
	return cfg
}

func execute(t *testing.T, cfg *config.Config, r relayer, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(cfg, r)
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRelayCmd_Success(t *testing.T) {
	stub := &stubRelayer{res: relay.Result{Outcome: relay.OutcomeSuccess, Backend: "cdn", RemoteURL: "https://cdn.example.com/a.png"}}

	out, err := execute(t, testConfig(t), stub, "relay", "/tmp/a.png", "--backend", "cdn", "--mime", "image/png")

	require.NoError(t, err)
	assert.Equal(t, relay.UploadRequest{Path: "/tmp/a.png", MIMEType: "image/png"}, stub.gotReq)
	assert.Equal(t, "cdn", stub.gotConf.Name)

	var printed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, "success", printed["outcome"])
	assert.Equal(t, "https://cdn.example.com/a.png", printed["remote_url"])
}

func TestRelayCmd_DefaultsToActiveBackend(t *testing.T) {
	stub := &stubRelayer{res: relay.Result{Outcome: relay.OutcomeSkipped, Backend: "imgbb", SkipReason: relay.SkipIneligible}}

	out, err := execute(t, testConfig(t), stub, "relay", "/tmp/a.pdf")

	require.NoError(t, err)
	assert.Equal(t, "imgbb-key", stub.gotConf.APIKey)
	assert.Contains(t, out, `"skip_reason": "ineligible"`)
}

func TestRelayCmd_FailureReturnsError(t *testing.T) {
	stub := &stubRelayer{res: relay.Result{Outcome: relay.OutcomeFailure, Backend: "imgbb", FailureKind: relay.BackendRejected, Message: "status 500: boom"}}

	out, err := execute(t, testConfig(t), stub, "relay", "/tmp/a.png")

	assert.ErrorIs(t, err, errRelayFailed)
	assert.Contains(t, out, `"failure_kind": "backend_rejected"`)
}

func TestRelayCmd_UnknownBackend(t *testing.T) {
	_, err := execute(t, testConfig(t), &stubRelayer{}, "relay", "/tmp/a.png", "-b", "flickr")

	assert.ErrorContains(t, err, `unknown relay backend "flickr"`)
}

func TestBackendsCmd(t *testing.T) {
	out, err := execute(t, testConfig(t), &stubRelayer{}, "backends")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, len(relay.PresetNames()))
	assert.Contains(t, out, "* imgbb")
	assert.Regexp(t, `\* imgbb\s+http_form\s+configured`, out)

	out, err = execute(t, testConfig(t), &stubRelayer{}, "backends", "--json")
	require.NoError(t, err)
	var infos []backendInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Equal(t, "cdn", infos[0].Name)
	assert.False(t, infos[0].Configured)
}

func TestBackendsCmd_FTPNeedsHostAndBaseURL(t *testing.T) {
	env := map[string]string{
		"JWT_SECRET":   "test-secret",
		"FTP_USERNAME": "media",
		"FTP_PASSWORD": "pass",
	}
	cfg, err := config.FromEnv(func(key string) string { return env[key] })
	require.NoError(t, err)

	out, err := execute(t, cfg, &stubRelayer{}, "backends", "--json")
	require.NoError(t, err)
	var infos []backendInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	ftpInfo := findBackend(t, infos, "ftp")
	assert.False(t, ftpInfo.Configured)

	env["FTP_HOST"] = "ftp.example.com"
	env["FTP_BASE_URL"] = "https://media.example.com"
	cfg, err = config.FromEnv(func(key string) string { return env[key] })
	require.NoError(t, err)

	out, err = execute(t, cfg, &stubRelayer{}, "backends", "--json")
	require.NoError(t, err)
	infos = nil
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	ftpInfo = findBackend(t, infos, "ftp")
	assert.True(t, ftpInfo.Configured)
}

func findBackend(t *testing.T, infos []backendInfo, name string) backendInfo {
	t.Helper()
	for _, info := range infos {
		if info.Name == name {
			return info
		}
	}
	t.Fatalf("backend %q not listed", name)
	return backendInfo{}
}

func TestTokenCmd(t *testing.T) {
	out, err := execute(t, testConfig(t), &stubRelayer{}, "token", "uploader")
	require.NoError(t, err)

	subject, err := auth.NewAuthenticator("test-secret").ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "uploader", subject)
}
