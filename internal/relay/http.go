package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	maxResponseBytes = 1 << 20
	maxMessageBytes  = 512
)

// HTTPDoer is the subset of *http.Client used by HTTP backends.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func (c BackendConfig) auth() AuthStyle {
	if c.Auth != "" {
		return c.Auth
	}
	if c.Kind == KindHTTPJSON {
		return AuthBearer
	}
	return AuthForm
}

func (c BackendConfig) authParam() string {
	if c.AuthParam != "" {
		return c.AuthParam
	}
	return "key"
}

func (c BackendConfig) fileField() string {
	if c.FileField != "" {
		return c.FileField
	}
	return "file"
}

func (c BackendConfig) encoding() Encoding {
	if c.Encoding != "" {
		return c.Encoding
	}
	if c.Kind == KindHTTPMultipart {
		return EncodingRaw
	}
	return EncodingBase64
}

func (c BackendConfig) encodePayload(data []byte) string {
	if c.encoding() == EncodingRaw {
		return string(data)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func (s ResponseSpec) urlPath() string {
	if s.URLPath != "" {
		return s.URLPath
	}
	return "url"
}

func (s ResponseSpec) successValue() string {
	if s.SuccessValue != "" {
		return s.SuccessValue
	}
	return "success"
}

func (r *Relayer) sendHTTP(ctx context.Context, cfg BackendConfig, req UploadRequest, data []byte, mimeType string) (remote, *Error) {
	body, contentType, err := buildBody(cfg, req, data, mimeType)
	if err != nil {
		return remote{}, fail(LocalReadError, "encode request: %v", err)
	}

	endpoint := cfg.Endpoint
	if cfg.auth() == AuthQuery {
		u, err := url.Parse(endpoint)
		if err != nil {
			return remote{}, fail(TransportError, "invalid endpoint %q: %v", endpoint, err)
		}
		q := u.Query()
		q.Set(cfg.authParam(), cfg.APIKey)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return remote{}, fail(TransportError, "build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if cfg.auth() == AuthBearer {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return remote{}, fail(TransportError, "post %s: %v", redactEndpoint(cfg.Endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Only a prefix of the body is kept for the message, however large it is.
		prefix, _ := io.ReadAll(io.LimitReader(resp.Body, maxMessageBytes+1))
		return remote{}, fail(BackendRejected, "status %d: %s", resp.StatusCode, truncate(string(prefix)))
	}

	raw, err := readAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		if isResponseTooLarge(err) {
			return remote{}, fail(ProtocolError, "%v", err)
		}
		return remote{}, fail(TransportError, "read response: %v", err)
	}
	return interpretJSON(cfg, raw)
}

func buildBody(cfg BackendConfig, req UploadRequest, data []byte, mimeType string) (io.Reader, string, error) {
	name := req.BaseName()
	filenameField := cfg.FilenameField

	switch cfg.Kind {
	case KindHTTPJSON:
		payload := map[string]string{cfg.fileField(): cfg.encodePayload(data)}
		if filenameField != "" {
			payload[filenameField] = name
		}
		if cfg.auth() == AuthForm {
			payload[cfg.authParam()] = cfg.APIKey
		}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(encoded), "application/json", nil

	case KindHTTPMultipart:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		if cfg.auth() == AuthForm {
			if err := w.WriteField(cfg.authParam(), cfg.APIKey); err != nil {
				return nil, "", err
			}
		}
		if filenameField != "" {
			if err := w.WriteField(filenameField, name); err != nil {
				return nil, "", err
			}
		}
		if cfg.encoding() == EncodingBase64 {
			if err := w.WriteField(cfg.fileField(), cfg.encodePayload(data)); err != nil {
				return nil, "", err
			}
		} else {
			header := make(textproto.MIMEHeader)
			header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, cfg.fileField(), name))
			header.Set("Content-Type", mimeType)
			part, err := w.CreatePart(header)
			if err != nil {
				return nil, "", err
			}
			if _, err := part.Write(data); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return buf, w.FormDataContentType(), nil

	default:
		form := url.Values{}
		form.Set(cfg.fileField(), cfg.encodePayload(data))
		if filenameField != "" {
			form.Set(filenameField, name)
		}
		if cfg.auth() == AuthForm {
			form.Set(cfg.authParam(), cfg.APIKey)
		}
		return strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", nil
	}
}

// interpretJSON applies the backend's ResponseSpec to a 2xx reply body.
func interpretJSON(cfg BackendConfig, raw []byte) (remote, *Error) {
	if !gjson.ValidBytes(raw) {
		return remote{}, fail(ProtocolError, "malformed response: %s", truncate(string(raw)))
	}
	rs := cfg.Response

	if rs.StatusPath != "" {
		status := gjson.GetBytes(raw, rs.StatusPath)
		if status.Exists() && !strings.EqualFold(status.String(), rs.successValue()) {
			return remote{}, fail(BackendRejected, "%s", backendError(raw, rs, status.String()))
		}
	}

	value := gjson.GetBytes(raw, rs.urlPath())
	if !value.Exists() || strings.TrimSpace(value.String()) == "" {
		if rs.ErrorPath != "" && gjson.GetBytes(raw, rs.ErrorPath).Exists() {
			return remote{}, fail(BackendRejected, "%s", backendError(raw, rs, ""))
		}
		return remote{}, fail(ProtocolError, "response has no %q field", rs.urlPath())
	}

	remoteURL := strings.TrimSpace(value.String())
	if cfg.URLTemplate != "" {
		rendered, err := render(cfg.URLTemplate, struct{ Value string }{Value: remoteURL})
		if err != nil {
			return remote{}, fail(ProtocolError, "url template: %v", err)
		}
		remoteURL = rendered
	}
	if err := checkRemoteURL(remoteURL); err != nil {
		return remote{}, fail(ProtocolError, "%v", err)
	}

	out := remote{url: remoteURL}
	if rs.MIMEPath != "" {
		out.mime = normalizeMIME(gjson.GetBytes(raw, rs.MIMEPath).String())
	}
	return out, nil
}

func backendError(raw []byte, rs ResponseSpec, status string) string {
	if rs.ErrorPath != "" {
		if msg := gjson.GetBytes(raw, rs.ErrorPath); msg.Exists() && msg.String() != "" {
			return truncate(msg.String())
		}
	}
	if status != "" {
		return "status " + status
	}
	return truncate(string(raw))
}

func checkRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid remote url %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote url %q is not an absolute http(s) url", raw)
	}
	return nil
}

// redactEndpoint drops the query string, which may carry an API key.
func redactEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "endpoint"
	}
	u.RawQuery = ""
	return u.String()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxMessageBytes {
		return s
	}
	return s[:maxMessageBytes] + "..."
}
