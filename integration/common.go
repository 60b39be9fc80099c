package integration

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/bulatminnakhmetov/media-relay/internal/handler/auth"
)

// AppURL returns the base URL of the service under test, or "" when integration tests are disabled
func AppURL() string {
	return os.Getenv("APP_URL")
}

// IssueTestToken signs a short-lived API token with the service's JWT_SECRET
func IssueTestToken() (string, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET must be set for integration tests")
	}
	return auth.NewAuthenticator(secret).IssueToken(fmt.Sprintf("integration-%d", time.Now().UnixNano()), time.Hour)
}

// UploadFile posts data as a multipart file to /api/media
func UploadFile(appURL, token, filename, contentType string, data []byte) (*http.Response, error) {
	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename)}
	h["Content-Type"] = []string{contentType}
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, appURL+"/api/media", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}
