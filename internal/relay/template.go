package relay

import (
	"fmt"
	"path"
	"strings"
	"text/template"
	"time"
)

const defaultObjectURLTemplate = "{{.BaseURL}}/{{.RemotePath}}"

type pathVars struct {
	Year  string
	Month string
	Day   string
}

type objectVars struct {
	BaseURL    string
	RemotePath string
}

func render(text string, data any) (string, error) {
	tmpl, err := template.New("relay").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// remoteDir is the absolute directory that receives the upload:
// Directory followed by the rendered PathTemplate.
func remoteDir(cfg BackendConfig, now time.Time) (string, error) {
	tmpl := cfg.PathTemplate
	if tmpl == "" {
		tmpl = DefaultPathTemplate
	}
	rendered, err := render(tmpl, pathVars{
		Year:  now.Format("2006"),
		Month: now.Format("01"),
		Day:   now.Format("02"),
	})
	if err != nil {
		return "", err
	}
	return path.Join("/", cfg.Directory, rendered), nil
}

func objectURL(cfg BackendConfig, baseURL, remotePath string) (string, error) {
	tmpl := cfg.URLTemplate
	if tmpl == "" {
		tmpl = defaultObjectURLTemplate
	}
	rendered, err := render(tmpl, objectVars{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		RemotePath: strings.TrimPrefix(remotePath, "/"),
	})
	if err != nil {
		return "", fmt.Errorf("url template: %w", err)
	}
	if err := checkRemoteURL(rendered); err != nil {
		return "", err
	}
	return rendered, nil
}
