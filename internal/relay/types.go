package relay

import (
	"fmt"
	"path/filepath"
	"time"
)

// BackendKind selects the transport used to reach a remote host.
type BackendKind string

const (
	KindHTTPForm      BackendKind = "http_form"
	KindHTTPJSON      BackendKind = "http_json"
	KindHTTPMultipart BackendKind = "http_multipart"
	KindFTP           BackendKind = "ftp"
	KindS3            BackendKind = "s3"
)

// IsHTTP reports whether the kind is one of the HTTP host variants.
func (k BackendKind) IsHTTP() bool {
	switch k {
	case KindHTTPForm, KindHTTPJSON, KindHTTPMultipart:
		return true
	}
	return false
}

// AuthStyle describes where an HTTP backend expects its API key.
type AuthStyle string

const (
	AuthForm   AuthStyle = "form"
	AuthQuery  AuthStyle = "query"
	AuthBearer AuthStyle = "bearer"
)

// Encoding of the file bytes inside an HTTP request body.
type Encoding string

const (
	EncodingBase64 Encoding = "base64"
	EncodingRaw    Encoding = "raw"
)

const (
	DefaultTimeout      = 60 * time.Second
	DefaultFTPPort      = 21
	DefaultPathTemplate = "uploads/{{.Year}}/{{.Month}}"
)

// DefaultAllowedMIMETypes are the raster image types relayed when a backend
// does not declare its own allow-list.
var DefaultAllowedMIMETypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
}

// UploadRequest describes one freshly uploaded local file.
type UploadRequest struct {
	// Path of the file in local storage.
	Path string
	// Data, when non-nil, is used instead of reading Path.
	Data []byte
	// MIMEType as declared by the uploader.
	MIMEType string
	// Filename is the original client-side name.
	Filename string
}

// BaseName returns the name used for the remote object.
func (r UploadRequest) BaseName() string {
	if r.Filename != "" {
		return filepath.Base(r.Filename)
	}
	return filepath.Base(r.Path)
}

// ResponseSpec tells the pipeline where to find things in a JSON reply.
// Paths use gjson syntax ("data.url", "image.url").
type ResponseSpec struct {
	URLPath      string `yaml:"url_path"`
	MIMEPath     string `yaml:"mime_path"`
	StatusPath   string `yaml:"status_path"`
	SuccessValue string `yaml:"success_value"`
	ErrorPath    string `yaml:"error_path"`
}

// BackendConfig is the read-only description of one remote host.
type BackendConfig struct {
	Name string      `yaml:"name"`
	Kind BackendKind `yaml:"kind"`

	// Endpoint is the upload URL for HTTP kinds, the host for FTP and the
	// host[:port] of the S3 API.
	Endpoint string `yaml:"endpoint"`
	Port     int    `yaml:"port"`
	UseTLS   bool   `yaml:"use_tls"`

	APIKey          string `yaml:"api_key"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`

	Auth          AuthStyle `yaml:"auth"`
	AuthParam     string    `yaml:"auth_param"`
	FileField     string    `yaml:"file_field"`
	FilenameField string    `yaml:"filename_field"`
	Encoding      Encoding  `yaml:"encoding"`

	Response ResponseSpec `yaml:"response"`

	// URLTemplate builds the final URL. HTTP kinds see {{.Value}} (the
	// extracted field); FTP and S3 see {{.BaseURL}} and {{.RemotePath}}.
	URLTemplate string `yaml:"url_template"`
	// PathTemplate is the remote directory below Directory for FTP and S3.
	PathTemplate string `yaml:"path_template"`
	BaseURL      string `yaml:"base_url"`
	Directory    string `yaml:"directory"`

	AllowedMIMETypes []string      `yaml:"allowed_mime_types"`
	Timeout          time.Duration `yaml:"timeout"`
	// KeepLocalCopy marks backends that need the local file as an origin.
	KeepLocalCopy bool `yaml:"keep_local_copy"`
}

func (c BackendConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c BackendConfig) allowedTypes() []string {
	if len(c.AllowedMIMETypes) == 0 {
		return DefaultAllowedMIMETypes
	}
	return c.AllowedMIMETypes
}

func (c BackendConfig) ftpAddr() string {
	port := c.Port
	if port <= 0 {
		port = DefaultFTPPort
	}
	return fmt.Sprintf("%s:%d", c.Endpoint, port)
}

// Configured reports whether every credential and address the kind needs is present.
func (c BackendConfig) Configured() bool {
	switch {
	case c.Kind.IsHTTP():
		return c.Endpoint != "" && c.APIKey != ""
	case c.Kind == KindFTP:
		return c.Endpoint != "" && c.Username != "" && c.Password != "" &&
			(c.BaseURL != "" || c.URLTemplate != "")
	case c.Kind == KindS3:
		return c.Endpoint != "" && c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
	}
	return false
}

// Outcome of one relay call.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failure"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// FailureKind classifies a failed transfer.
type FailureKind string

const (
	LocalReadError  FailureKind = "local_read_error"
	TransportError  FailureKind = "transport_error"
	BackendRejected FailureKind = "backend_rejected"
	ProtocolError   FailureKind = "protocol_error"
)

// SkipReason explains why a file was left local on purpose.
type SkipReason string

const (
	SkipIneligible   SkipReason = "ineligible"
	SkipUnconfigured SkipReason = "unconfigured"
)

// Result is returned by every relay call. Only OutcomeSuccess carries a
// remote location; in every other case LocalPath stays authoritative.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	Backend   string  `json:"backend"`
	LocalPath string  `json:"local_path,omitempty"`

	RemoteURL      string `json:"remote_url,omitempty"`
	RemoteMIME     string `json:"remote_mime,omitempty"`
	DeleteEligible bool   `json:"delete_eligible"`

	SkipReason  SkipReason  `json:"skip_reason,omitempty"`
	FailureKind FailureKind `json:"failure_kind,omitempty"`
	Message     string      `json:"message,omitempty"`
}

func (r Result) Succeeded() bool { return r.Outcome == OutcomeSuccess }
func (r Result) Skipped() bool   { return r.Outcome == OutcomeSkipped }
func (r Result) Failed() bool    { return r.Outcome == OutcomeFailure }

// Err returns the failure as an *Error, or nil for success and skips.
func (r Result) Err() error {
	if r.Outcome != OutcomeFailure {
		return nil
	}
	return &Error{Kind: r.FailureKind, Backend: r.Backend, Message: r.Message}
}

// Patch builds the metadata association for a successful result.
func (r Result) Patch(attachmentID int) (AttachmentMetadataPatch, bool) {
	if !r.Succeeded() {
		return AttachmentMetadataPatch{}, false
	}
	return AttachmentMetadataPatch{
		AttachmentID: attachmentID,
		RemoteURL:    r.RemoteURL,
		RemoteMIME:   r.RemoteMIME,
		Backend:      r.Backend,
	}, true
}

// AttachmentMetadataPatch maps a local attachment to its remote location.
type AttachmentMetadataPatch struct {
	AttachmentID int
	RemoteURL    string
	RemoteMIME   string
	Backend      string
}

// Error is the error form of a failed Result.
type Error struct {
	Kind    FailureKind
	Backend string
	Message string
}

func (e *Error) Error() string {
	if e.Backend == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("relay %s: %s: %s", e.Backend, e.Kind, e.Message)
}
