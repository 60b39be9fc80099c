package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bulatminnakhmetov/media-relay/internal/relay"
)

var (
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// Relay status values stored in attachments.relay_status
const (
	StatusPending = "pending"
	StatusRelayed = "relayed"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Attachment is one uploaded media item and, once relayed, its remote location.
type Attachment struct {
	ID           int       `json:"id"`
	Filename     string    `json:"filename"`
	MIMEType     string    `json:"mime_type"`
	SizeBytes    int64     `json:"size_bytes"`
	LocalPath    string    `json:"-"`
	LocalURL     string    `json:"local_url"`
	LocalDeleted bool      `json:"local_deleted"`
	RemoteURL    string    `json:"remote_url,omitempty"`
	RemoteMIME   string    `json:"remote_mime,omitempty"`
	Backend      string    `json:"backend,omitempty"`
	RelayStatus  string    `json:"relay_status"`
	RelayMessage string    `json:"relay_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RepositoryImpl stores attachments in Postgres
type RepositoryImpl struct {
	db *sql.DB
}

// NewRepository creates a new attachment repository
func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{
		db: db,
	}
}

const attachmentColumns = `id, filename, mime_type, size_bytes, local_path, local_url, local_deleted,
	COALESCE(remote_url, ''), COALESCE(remote_mime, ''), COALESCE(backend, ''),
	relay_status, COALESCE(relay_message, ''), created_at, updated_at`

// CreateAttachment registers a freshly uploaded local file
func (r *RepositoryImpl) CreateAttachment(ctx context.Context, a *Attachment) (int, error) {
	var id int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO attachments (filename, mime_type, size_bytes, local_path, local_url, relay_status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.Filename, a.MIMEType, a.SizeBytes, a.LocalPath, a.LocalURL, StatusPending,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save attachment: %w", err)
	}
	return id, nil
}

// GetAttachmentByID retrieves an attachment by its ID
func (r *RepositoryImpl) GetAttachmentByID(ctx context.Context, id int) (*Attachment, error) {
	var a Attachment
	err := r.db.QueryRowContext(ctx,
		"SELECT "+attachmentColumns+" FROM attachments WHERE id = $1", id,
	).Scan(
		&a.ID, &a.Filename, &a.MIMEType, &a.SizeBytes, &a.LocalPath, &a.LocalURL, &a.LocalDeleted,
		&a.RemoteURL, &a.RemoteMIME, &a.Backend,
		&a.RelayStatus, &a.RelayMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &a, nil
}

// ApplyPatch persists the remote location of a relayed attachment
func (r *RepositoryImpl) ApplyPatch(ctx context.Context, patch relay.AttachmentMetadataPatch) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attachments
		SET remote_url = $1, remote_mime = $2, backend = $3, relay_status = $4, relay_message = NULL, updated_at = NOW()
		WHERE id = $5`,
		patch.RemoteURL, patch.RemoteMIME, patch.Backend, StatusRelayed, patch.AttachmentID,
	)
	if err != nil {
		return fmt.Errorf("failed to apply attachment patch: %w", err)
	}
	return expectOneRow(res)
}

// SetRelayStatus records a skipped or failed relay attempt
func (r *RepositoryImpl) SetRelayStatus(ctx context.Context, id int, backend, status, message string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE attachments SET backend = $1, relay_status = $2, relay_message = $3, updated_at = NOW() WHERE id = $4`,
		backend, status, message, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update relay status: %w", err)
	}
	return expectOneRow(res)
}

// GetRemoteURL returns the stored remote URL, or "" when the attachment was never relayed
func (r *RepositoryImpl) GetRemoteURL(ctx context.Context, id int) (string, error) {
	var remoteURL sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT remote_url FROM attachments WHERE id = $1", id).Scan(&remoteURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAttachmentNotFound
		}
		return "", fmt.Errorf("failed to get remote url: %w", err)
	}
	return remoteURL.String, nil
}

// MarkLocalDeleted flags that the local copy was removed after a relay
func (r *RepositoryImpl) MarkLocalDeleted(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, "UPDATE attachments SET local_deleted = TRUE, updated_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to mark local file deleted: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}
