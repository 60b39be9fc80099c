// Package relay forwards freshly uploaded media files to a third-party host
// and reports the URL the host assigned to them.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Relayer runs the relay pipeline. Its fields are set once by New and never
// mutated afterwards, so one Relayer may serve concurrent uploads.
type Relayer struct {
	httpClient     HTTPDoer
	dialFTP        FTPDialer
	newObjectStore ObjectStoreFactory
	now            func() time.Time
}

// Option customises a Relayer.
type Option func(*Relayer)

// WithHTTPClient replaces the HTTP transport.
func WithHTTPClient(c HTTPDoer) Option {
	return func(r *Relayer) { r.httpClient = c }
}

// WithFTPDialer replaces the FTP connection factory.
func WithFTPDialer(d FTPDialer) Option {
	return func(r *Relayer) { r.dialFTP = d }
}

// WithObjectStoreFactory replaces the S3 client factory.
func WithObjectStoreFactory(f ObjectStoreFactory) Option {
	return func(r *Relayer) { r.newObjectStore = f }
}

// WithClock sets the time source used for dated remote paths.
func WithClock(now func() time.Time) Option {
	return func(r *Relayer) { r.now = now }
}

// New creates a Relayer with production transports.
func New(opts ...Option) *Relayer {
	r := &Relayer{
		httpClient:     &http.Client{},
		dialFTP:        DialFTP,
		newObjectStore: NewMinioStore,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// remote is what a backend hands back after a completed transfer.
type remote struct {
	url  string
	mime string
}

// Relay uploads req to the backend described by cfg. It never returns an
// error: the outcome, including every failure, is carried by the Result.
func (r *Relayer) Relay(ctx context.Context, req UploadRequest, cfg BackendConfig) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = failed(req, cfg, &Error{Kind: ProtocolError, Message: fmt.Sprintf("unexpected panic: %v", p)})
		}
	}()

	// Sniffing reads the file, so an undeclared type waits for credentials.
	if normalizeMIME(req.MIMEType) == "" && !cfg.Configured() {
		return skipped(req, cfg, SkipUnconfigured, fmt.Sprintf("backend %q is missing credentials", cfg.Name))
	}
	mimeType, err := declaredType(req)
	if err != nil {
		return failed(req, cfg, &Error{Kind: LocalReadError, Message: err.Error()})
	}
	if !mimeAllowed(mimeType, cfg.allowedTypes()) {
		return skipped(req, cfg, SkipIneligible, fmt.Sprintf("mime type %q is not relayed by %s", mimeType, cfg.Name))
	}
	if !cfg.Configured() {
		return skipped(req, cfg, SkipUnconfigured, fmt.Sprintf("backend %q is missing credentials", cfg.Name))
	}

	data, err := readPayload(req)
	if err != nil {
		return failed(req, cfg, &Error{Kind: LocalReadError, Message: err.Error()})
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout())
	defer cancel()

	var (
		out  remote
		rerr *Error
	)
	switch {
	case cfg.Kind.IsHTTP():
		out, rerr = r.sendHTTP(ctx, cfg, req, data, mimeType)
	case cfg.Kind == KindFTP:
		out, rerr = r.sendFTP(ctx, cfg, req, data)
	case cfg.Kind == KindS3:
		out, rerr = r.sendS3(ctx, cfg, req, data, mimeType)
	}
	if rerr != nil {
		return failed(req, cfg, rerr)
	}

	remoteMIME := out.mime
	if remoteMIME == "" {
		remoteMIME = mimeType
	}
	return Result{
		Outcome:        OutcomeSuccess,
		Backend:        cfg.Name,
		LocalPath:      req.Path,
		RemoteURL:      out.url,
		RemoteMIME:     remoteMIME,
		DeleteEligible: !cfg.KeepLocalCopy,
	}
}

func readPayload(req UploadRequest) ([]byte, error) {
	if req.Data != nil {
		return req.Data, nil
	}
	if req.Path == "" {
		return nil, fmt.Errorf("upload request has neither data nor path")
	}
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.Path, err)
	}
	return data, nil
}

func skipped(req UploadRequest, cfg BackendConfig, reason SkipReason, msg string) Result {
	return Result{
		Outcome:    OutcomeSkipped,
		Backend:    cfg.Name,
		LocalPath:  req.Path,
		SkipReason: reason,
		Message:    msg,
	}
}

func failed(req UploadRequest, cfg BackendConfig, err *Error) Result {
	return Result{
		Outcome:     OutcomeFailure,
		Backend:     cfg.Name,
		LocalPath:   req.Path,
		FailureKind: err.Kind,
		Message:     err.Message,
	}
}

func fail(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
