package relay

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// normalizeMIME strips parameters and lower-cases a media type.
func normalizeMIME(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		mediaType, _, _ = strings.Cut(raw, ";")
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// declaredType returns the request's MIME type, sniffing the content when
// the uploader did not declare one.
func declaredType(req UploadRequest) (string, error) {
	if declared := normalizeMIME(req.MIMEType); declared != "" {
		return declared, nil
	}
	if req.Data != nil {
		return normalizeMIME(mimetype.Detect(req.Data).String()), nil
	}
	detected, err := mimetype.DetectFile(req.Path)
	if err != nil {
		return "", fmt.Errorf("detect mime type of %s: %w", req.Path, err)
	}
	return normalizeMIME(detected.String()), nil
}

// mimeAllowed matches against an allow-list that may contain "type/*".
func mimeAllowed(mediaType string, allowed []string) bool {
	if mediaType == "" {
		return false
	}
	for _, entry := range allowed {
		entry = normalizeMIME(entry)
		if entry == mediaType || entry == "*/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(entry, "/*"); ok && strings.HasPrefix(mediaType, prefix+"/") {
			return true
		}
	}
	return false
}
