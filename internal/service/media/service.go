package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bulatminnakhmetov/media-relay/internal/metrics"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
	mediarepo "github.com/bulatminnakhmetov/media-relay/internal/repository/media"
)

var (
	ErrAttachmentNotFound = mediarepo.ErrAttachmentNotFound
	ErrFileTooBig         = errors.New("file too big")
	ErrEmptyFile          = errors.New("file is empty")
	ErrRelayNotRecorded   = errors.New("relay result not recorded")
)

const (
	MaxFileSize      = 10 * 1024 * 1024 // 10 MB
	DefaultCacheSize = 1024
)

type Attachment = mediarepo.Attachment

// AttachmentRepository defines the attachment metadata operations the service needs
type AttachmentRepository interface {
	CreateAttachment(ctx context.Context, a *mediarepo.Attachment) (int, error)
	GetAttachmentByID(ctx context.Context, id int) (*mediarepo.Attachment, error)
	ApplyPatch(ctx context.Context, patch relay.AttachmentMetadataPatch) error
	SetRelayStatus(ctx context.Context, id int, backend, status, message string) error
	GetRemoteURL(ctx context.Context, id int) (string, error)
	MarkLocalDeleted(ctx context.Context, id int) error
}

// Relayer forwards a local file to the remote host
type Relayer interface {
	Relay(ctx context.Context, req relay.UploadRequest, cfg relay.BackendConfig) relay.Result
}

// Config holds the host-side relay policy
type Config struct {
	// UploadDir is where uploads are stored before relaying.
	UploadDir string
	// UploadBaseURL is the public URL prefix of UploadDir.
	UploadBaseURL string
	// Backend is the single active remote host.
	Backend relay.BackendConfig
	// DeleteLocalAfterRelay removes the local copy after a successful relay
	// when the backend allows it.
	DeleteLocalAfterRelay bool
	MaxFileSize           int64
	CacheSize             int
}

// MediaServiceImpl stores uploads locally and relays them to the configured backend
type MediaServiceImpl struct {
	repo     AttachmentRepository
	relayer  Relayer
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	urlCache *lru.Cache[int, string]
}

// NewMediaService creates a new MediaServiceImpl
func NewMediaService(repo AttachmentRepository, relayer Relayer, cfg Config, logger *slog.Logger, m *metrics.Metrics) (*MediaServiceImpl, error) {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = MaxFileSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[int, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create url cache: %w", err)
	}

	return &MediaServiceImpl{
		repo:     repo,
		relayer:  relayer,
		cfg:      cfg,
		logger:   logger.With(slog.String("backend", cfg.Backend.Name)),
		metrics:  m,
		urlCache: cache,
	}, nil
}

type FileHeaderWrapper struct {
	*multipart.FileHeader
}

func (w *FileHeaderWrapper) Open() (multipart.File, error) {
	return w.FileHeader.Open()
}

func (w *FileHeaderWrapper) GetFilename() string {
	return w.Filename
}

func (w *FileHeaderWrapper) GetSize() int64 {
	return w.Size
}

func (w *FileHeaderWrapper) GetHeader() textproto.MIMEHeader {
	return w.Header
}

type UploadedFile interface {
	Open() (multipart.File, error)
	GetFilename() string
	GetSize() int64
	GetHeader() textproto.MIMEHeader
}

// UploadMedia saves the file locally, registers it and relays it. A relay that
// is skipped or fails is recorded on the attachment and is not an error.
func (s *MediaServiceImpl) UploadMedia(ctx context.Context, fileHeader UploadedFile) (*Attachment, error) {
	if fileHeader.GetSize() > s.cfg.MaxFileSize {
		return nil, ErrFileTooBig
	}
	if fileHeader.GetSize() == 0 {
		return nil, ErrEmptyFile
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(fileHeader.GetFilename()))
	localName := uuid.NewString() + ext
	localPath := filepath.Join(s.cfg.UploadDir, localName)

	size, err := s.saveLocal(file, localPath)
	if err != nil {
		return nil, err
	}

	mimeType := fileHeader.GetHeader().Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		if detected, err := mimetype.DetectFile(localPath); err == nil {
			mimeType = detected.String()
		}
	}

	a := &Attachment{
		Filename:    filepath.Base(fileHeader.GetFilename()),
		MIMEType:    mimeType,
		SizeBytes:   size,
		LocalPath:   localPath,
		LocalURL:    strings.TrimRight(s.cfg.UploadBaseURL, "/") + "/" + localName,
		RelayStatus: mediarepo.StatusPending,
	}
	a.ID, err = s.repo.CreateAttachment(ctx, a)
	if err != nil {
		os.Remove(localPath)
		return nil, err
	}

	if err := s.relayAttachment(ctx, a); err != nil {
		if errors.Is(err, ErrRelayNotRecorded) {
			return a, err
		}
		return nil, err
	}
	return a, nil
}

func (s *MediaServiceImpl) saveLocal(src io.Reader, path string) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create local file: %w", err)
	}
	n, err := io.Copy(dst, io.LimitReader(src, s.cfg.MaxFileSize+1))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to save local file: %w", err)
	}
	if n > s.cfg.MaxFileSize {
		os.Remove(path)
		return 0, ErrFileTooBig
	}
	if n == 0 {
		os.Remove(path)
		return 0, ErrEmptyFile
	}
	return n, nil
}

// RelayAttachment re-attempts the relay of an existing attachment. Attachments
// that already have a remote URL are returned unchanged.
func (s *MediaServiceImpl) RelayAttachment(ctx context.Context, id int) (*Attachment, error) {
	a, err := s.repo.GetAttachmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.RelayStatus == mediarepo.StatusRelayed {
		return a, nil
	}
	if err := s.relayAttachment(ctx, a); err != nil {
		if errors.Is(err, ErrRelayNotRecorded) {
			return a, err
		}
		return nil, err
	}
	return a, nil
}

func (s *MediaServiceImpl) relayAttachment(ctx context.Context, a *Attachment) error {
	req := relay.UploadRequest{
		Path:     a.LocalPath,
		MIMEType: a.MIMEType,
		Filename: filepath.Base(a.LocalPath),
	}

	start := time.Now()
	res := s.relayer.Relay(ctx, req, s.cfg.Backend)
	s.metrics.ObserveRelay(res, time.Since(start))

	log := s.logger.With(slog.Int("attachment_id", a.ID))

	switch {
	case res.Succeeded():
		patch, _ := res.Patch(a.ID)
		if err := s.repo.ApplyPatch(ctx, patch); err != nil {
			return s.recordUnstoredRelay(ctx, a, res, err, log)
		}
		s.urlCache.Remove(a.ID)
		a.RemoteURL = patch.RemoteURL
		a.RemoteMIME = patch.RemoteMIME
		a.Backend = patch.Backend
		a.RelayStatus = mediarepo.StatusRelayed
		a.RelayMessage = ""
		log.Info("media relayed", slog.String("remote_url", res.RemoteURL))

		if s.cfg.DeleteLocalAfterRelay && res.DeleteEligible {
			s.deleteLocal(ctx, a, log)
		}

	case res.Skipped():
		log.Info("media relay skipped",
			slog.String("reason", string(res.SkipReason)),
			slog.String("message", res.Message))
		if err := s.repo.SetRelayStatus(ctx, a.ID, res.Backend, mediarepo.StatusSkipped, res.Message); err != nil {
			return err
		}
		a.Backend = res.Backend
		a.RelayStatus = mediarepo.StatusSkipped
		a.RelayMessage = res.Message

	default:
		msg := string(res.FailureKind) + ": " + res.Message
		log.Warn("media relay failed",
			slog.String("kind", string(res.FailureKind)),
			slog.String("error", res.Message))
		if err := s.repo.SetRelayStatus(ctx, a.ID, res.Backend, mediarepo.StatusFailed, msg); err != nil {
			return err
		}
		a.Backend = res.Backend
		a.RelayStatus = mediarepo.StatusFailed
		a.RelayMessage = msg
	}
	return nil
}

// recordUnstoredRelay handles a remote copy the metadata store did not accept.
// The attachment is marked failed when possible and the local file is kept.
func (s *MediaServiceImpl) recordUnstoredRelay(ctx context.Context, a *Attachment, res relay.Result, patchErr error, log *slog.Logger) error {
	msg := fmt.Sprintf("store_error: remote copy at %s not recorded: %v", res.RemoteURL, patchErr)
	log.Error("failed to store relay result",
		slog.String("remote_url", res.RemoteURL),
		slog.String("error", patchErr.Error()))

	if err := s.repo.SetRelayStatus(ctx, a.ID, res.Backend, mediarepo.StatusFailed, msg); err != nil {
		log.Warn("failed to record relay status", slog.String("error", err.Error()))
	}
	a.Backend = res.Backend
	a.RelayStatus = mediarepo.StatusFailed
	a.RelayMessage = msg
	return fmt.Errorf("%w: %v", ErrRelayNotRecorded, patchErr)
}

func (s *MediaServiceImpl) deleteLocal(ctx context.Context, a *Attachment, log *slog.Logger) {
	if err := os.Remove(a.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to delete local copy", slog.String("error", err.Error()))
		return
	}
	if err := s.repo.MarkLocalDeleted(ctx, a.ID); err != nil {
		log.Warn("failed to mark local copy deleted", slog.String("error", err.Error()))
		return
	}
	a.LocalDeleted = true
}

// GetAttachment returns the stored attachment metadata
func (s *MediaServiceImpl) GetAttachment(ctx context.Context, id int) (*Attachment, error) {
	return s.repo.GetAttachmentByID(ctx, id)
}

// ResolveURL returns the remote URL of a relayed attachment and the local URL otherwise
func (s *MediaServiceImpl) ResolveURL(ctx context.Context, id int) (string, error) {
	if u, ok := s.urlCache.Get(id); ok {
		return u, nil
	}

	remoteURL, err := s.repo.GetRemoteURL(ctx, id)
	if err != nil {
		return "", err
	}
	if remoteURL != "" {
		s.urlCache.Add(id, remoteURL)
		return remoteURL, nil
	}

	a, err := s.repo.GetAttachmentByID(ctx, id)
	if err != nil {
		return "", err
	}
	return a.LocalURL, nil
}
