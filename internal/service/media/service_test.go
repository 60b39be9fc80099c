package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bulatminnakhmetov/media-relay/internal/metrics"
	"github.com/bulatminnakhmetov/media-relay/internal/relay"
	mediarepo "github.com/bulatminnakhmetov/media-relay/internal/repository/media"
)

// MockAttachmentRepository is a mock implementation of AttachmentRepository
type MockAttachmentRepository struct {
	mock.Mock
}

func (m *MockAttachmentRepository) CreateAttachment(ctx context.Context, a *mediarepo.Attachment) (int, error) {
	args := m.Called(ctx, a)
	return args.Int(0), args.Error(1)
}

func (m *MockAttachmentRepository) GetAttachmentByID(ctx context.Context, id int) (*mediarepo.Attachment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*mediarepo.Attachment), args.Error(1)
}

func (m *MockAttachmentRepository) ApplyPatch(ctx context.Context, patch relay.AttachmentMetadataPatch) error {
	args := m.Called(ctx, patch)
	return args.Error(0)
}

func (m *MockAttachmentRepository) SetRelayStatus(ctx context.Context, id int, backend, status, message string) error {
	args := m.Called(ctx, id, backend, status, message)
	return args.Error(0)
}

func (m *MockAttachmentRepository) GetRemoteURL(ctx context.Context, id int) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockAttachmentRepository) MarkLocalDeleted(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRelayer is a mock implementation of Relayer
type MockRelayer struct {
	mock.Mock
}

func (m *MockRelayer) Relay(ctx context.Context, req relay.UploadRequest, cfg relay.BackendConfig) relay.Result {
	args := m.Called(ctx, req, cfg)
	return args.Get(0).(relay.Result)
}

type testFile struct {
	path   string
	name   string
	size   int64
	header textproto.MIMEHeader
}

func (f *testFile) Open() (multipart.File, error)   { return os.Open(f.path) }
func (f *testFile) GetFilename() string             { return f.name }
func (f *testFile) GetSize() int64                  { return f.size }
func (f *testFile) GetHeader() textproto.MIMEHeader { return f.header }

func newTestFile(t *testing.T, name, contentType string, data []byte) *testFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "src-"+name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	h := textproto.MIMEHeader{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &testFile{path: path, name: name, size: int64(len(data)), header: h}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testBackend() relay.BackendConfig {
	return relay.BackendConfig{
		Name:      "ftp",
		Kind:      relay.KindFTP,
		BaseURL:   "https://media.example.com",
		Directory: "site",
	}
}

func newTestService(t *testing.T, cfg Config) (*MediaServiceImpl, *MockAttachmentRepository, *MockRelayer) {
	t.Helper()
	if cfg.UploadDir == "" {
		cfg.UploadDir = t.TempDir()
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = "http://localhost:8080/uploads"
	}
	if cfg.Backend.Name == "" {
		cfg.Backend = testBackend()
	}
	repo := new(MockAttachmentRepository)
	relayer := new(MockRelayer)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewMediaService(repo, relayer, cfg, logger, metrics.MustNewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	return svc, repo, relayer
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestUploadMedia_RelayedAndLocalDeleted(t *testing.T) {
	dir := t.TempDir()
	svc, repo, relayer := newTestService(t, Config{UploadDir: dir, DeleteLocalAfterRelay: true})
	file := newTestFile(t, "Cat.PNG", "image/png", pngHeader)

	repo.On("CreateAttachment", mock.Anything, mock.MatchedBy(func(a *mediarepo.Attachment) bool {
		return a.Filename == "Cat.PNG" && a.MIMEType == "image/png" &&
			strings.HasSuffix(a.LocalPath, ".png") &&
			strings.HasPrefix(a.LocalURL, "http://localhost:8080/uploads/")
	})).Return(7, nil)
	relayer.On("Relay", mock.Anything, mock.MatchedBy(func(req relay.UploadRequest) bool {
		return filepath.Dir(req.Path) == dir && req.MIMEType == "image/png"
	}), testBackend()).Return(relay.Result{
		Outcome:        relay.OutcomeSuccess,
		Backend:        "ftp",
		RemoteURL:      "https://media.example.com/site/uploads/2026/10/x.png",
		RemoteMIME:     "image/png",
		DeleteEligible: true,
	})
	repo.On("ApplyPatch", mock.Anything, relay.AttachmentMetadataPatch{
		AttachmentID: 7,
		RemoteURL:    "https://media.example.com/site/uploads/2026/10/x.png",
		RemoteMIME:   "image/png",
		Backend:      "ftp",
	}).Return(nil)
	repo.On("MarkLocalDeleted", mock.Anything, 7).Return(nil)

	a, err := svc.UploadMedia(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, 7, a.ID)
	assert.Equal(t, mediarepo.StatusRelayed, a.RelayStatus)
	assert.Equal(t, "https://media.example.com/site/uploads/2026/10/x.png", a.RemoteURL)
	assert.True(t, a.LocalDeleted)
	assert.Empty(t, uploadedFiles(t, dir))
	repo.AssertExpectations(t)
	relayer.AssertExpectations(t)
}

func TestUploadMedia_KeepsLocalCopy(t *testing.T) {
	success := relay.Result{Outcome: relay.OutcomeSuccess, Backend: "ftp", RemoteURL: "https://x/y.png", RemoteMIME: "image/png"}

	tests := []struct {
		name           string
		deletePolicy   bool
		deleteEligible bool
	}{
		{"policy off", false, true},
		{"backend keeps local copy", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			svc, repo, relayer := newTestService(t, Config{UploadDir: dir, DeleteLocalAfterRelay: tt.deletePolicy})

			res := success
			res.DeleteEligible = tt.deleteEligible
			repo.On("CreateAttachment", mock.Anything, mock.Anything).Return(1, nil)
			relayer.On("Relay", mock.Anything, mock.Anything, mock.Anything).Return(res)
			repo.On("ApplyPatch", mock.Anything, mock.Anything).Return(nil)

			a, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", pngHeader))

			require.NoError(t, err)
			assert.False(t, a.LocalDeleted)
			assert.Len(t, uploadedFiles(t, dir), 1)
			repo.AssertNotCalled(t, "MarkLocalDeleted", mock.Anything, mock.Anything)
		})
	}
}

func TestUploadMedia_SkippedIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	svc, repo, relayer := newTestService(t, Config{UploadDir: dir, DeleteLocalAfterRelay: true})

	repo.On("CreateAttachment", mock.Anything, mock.Anything).Return(3, nil)
	relayer.On("Relay", mock.Anything, mock.Anything, mock.Anything).Return(relay.Result{
		Outcome:    relay.OutcomeSkipped,
		Backend:    "ftp",
		SkipReason: relay.SkipIneligible,
		Message:    `mime type "application/pdf" is not relayed by ftp`,
	})
	repo.On("SetRelayStatus", mock.Anything, 3, "ftp", mediarepo.StatusSkipped, `mime type "application/pdf" is not relayed by ftp`).Return(nil)

	a, err := svc.UploadMedia(context.Background(), newTestFile(t, "doc.pdf", "application/pdf", []byte("%PDF-1.4")))

	require.NoError(t, err)
	assert.Equal(t, mediarepo.StatusSkipped, a.RelayStatus)
	assert.Len(t, uploadedFiles(t, dir), 1)
	repo.AssertExpectations(t)
}

func TestUploadMedia_FailureKeepsLocalFile(t *testing.T) {
	dir := t.TempDir()
	svc, repo, relayer := newTestService(t, Config{UploadDir: dir, DeleteLocalAfterRelay: true})

	repo.On("CreateAttachment", mock.Anything, mock.Anything).Return(4, nil)
	relayer.On("Relay", mock.Anything, mock.Anything, mock.Anything).Return(relay.Result{
		Outcome:     relay.OutcomeFailure,
		Backend:     "ftp",
		FailureKind: relay.TransportError,
		Message:     "login: 530 Login incorrect",
	})
	repo.On("SetRelayStatus", mock.Anything, 4, "ftp", mediarepo.StatusFailed, "transport_error: login: 530 Login incorrect").Return(nil)

	a, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", pngHeader))

	require.NoError(t, err)
	assert.Equal(t, mediarepo.StatusFailed, a.RelayStatus)
	assert.Empty(t, a.RemoteURL)
	assert.Len(t, uploadedFiles(t, dir), 1)
	repo.AssertNotCalled(t, "ApplyPatch", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestUploadMedia_UnrecordedRelayKeepsAttachment(t *testing.T) {
	dir := t.TempDir()
	svc, repo, relayer := newTestService(t, Config{UploadDir: dir, DeleteLocalAfterRelay: true})

	repo.On("CreateAttachment", mock.Anything, mock.Anything).Return(11, nil)
	relayer.On("Relay", mock.Anything, mock.Anything, mock.Anything).Return(relay.Result{
		Outcome:        relay.OutcomeSuccess,
		Backend:        "ftp",
		RemoteURL:      "https://x/y.png",
		RemoteMIME:     "image/png",
		DeleteEligible: true,
	})
	repo.On("ApplyPatch", mock.Anything, mock.Anything).Return(errors.New("db down"))
	repo.On("SetRelayStatus", mock.Anything, 11, "ftp", mediarepo.StatusFailed,
		"store_error: remote copy at https://x/y.png not recorded: db down").Return(nil)

	a, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", pngHeader))

	assert.ErrorIs(t, err, ErrRelayNotRecorded)
	require.NotNil(t, a)
	assert.Equal(t, 11, a.ID)
	assert.Equal(t, mediarepo.StatusFailed, a.RelayStatus)
	assert.False(t, a.LocalDeleted)
	assert.Len(t, uploadedFiles(t, dir), 1)
	repo.AssertNotCalled(t, "MarkLocalDeleted", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}

func TestUploadMedia_SniffsOctetStream(t *testing.T) {
	svc, repo, relayer := newTestService(t, Config{})

	repo.On("CreateAttachment", mock.Anything, mock.MatchedBy(func(a *mediarepo.Attachment) bool {
		return a.MIMEType == "image/png"
	})).Return(5, nil)
	relayer.On("Relay", mock.Anything, mock.Anything, mock.Anything).Return(relay.Result{Outcome: relay.OutcomeSkipped, Backend: "ftp"})
	repo.On("SetRelayStatus", mock.Anything, 5, "ftp", mediarepo.StatusSkipped, "").Return(nil)

	_, err := svc.UploadMedia(context.Background(), newTestFile(t, "a", "application/octet-stream", pngHeader))

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUploadMedia_Rejected(t *testing.T) {
	t.Run("File too big", func(t *testing.T) {
		svc, repo, relayer := newTestService(t, Config{MaxFileSize: 4})

		_, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", pngHeader))

		assert.ErrorIs(t, err, ErrFileTooBig)
		repo.AssertNotCalled(t, "CreateAttachment", mock.Anything, mock.Anything)
		relayer.AssertNotCalled(t, "Relay", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Empty file", func(t *testing.T) {
		svc, repo, _ := newTestService(t, Config{})

		_, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", nil))

		assert.ErrorIs(t, err, ErrEmptyFile)
		repo.AssertNotCalled(t, "CreateAttachment", mock.Anything, mock.Anything)
	})

	t.Run("Database error removes local file", func(t *testing.T) {
		dir := t.TempDir()
		svc, repo, relayer := newTestService(t, Config{UploadDir: dir})
		repo.On("CreateAttachment", mock.Anything, mock.Anything).Return(0, errors.New("db down"))

		_, err := svc.UploadMedia(context.Background(), newTestFile(t, "a.png", "image/png", pngHeader))

		assert.Error(t, err)
		assert.Empty(t, uploadedFiles(t, dir))
		relayer.AssertNotCalled(t, "Relay", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRelayAttachment(t *testing.T) {
	t.Run("Already relayed is a no-op", func(t *testing.T) {
		svc, repo, relayer := newTestService(t, Config{})
		stored := &mediarepo.Attachment{ID: 2, RelayStatus: mediarepo.StatusRelayed, RemoteURL: "https://x/y.png"}
		repo.On("GetAttachmentByID", mock.Anything, 2).Return(stored, nil)

		a, err := svc.RelayAttachment(context.Background(), 2)

		require.NoError(t, err)
		assert.Equal(t, stored, a)
		relayer.AssertNotCalled(t, "Relay", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Failed attachment is retried", func(t *testing.T) {
		svc, repo, relayer := newTestService(t, Config{})
		stored := &mediarepo.Attachment{ID: 2, LocalPath: "/var/uploads/a.png", MIMEType: "image/png", RelayStatus: mediarepo.StatusFailed}
		repo.On("GetAttachmentByID", mock.Anything, 2).Return(stored, nil)
		relayer.On("Relay", mock.Anything, relay.UploadRequest{Path: "/var/uploads/a.png", MIMEType: "image/png", Filename: "a.png"}, mock.Anything).
			Return(relay.Result{Outcome: relay.OutcomeSuccess, Backend: "ftp", RemoteURL: "https://x/a.png", RemoteMIME: "image/png"})
		repo.On("ApplyPatch", mock.Anything, mock.Anything).Return(nil)

		a, err := svc.RelayAttachment(context.Background(), 2)

		require.NoError(t, err)
		assert.Equal(t, "https://x/a.png", a.RemoteURL)
		assert.Equal(t, mediarepo.StatusRelayed, a.RelayStatus)
	})

	t.Run("Not found", func(t *testing.T) {
		svc, repo, _ := newTestService(t, Config{})
		repo.On("GetAttachmentByID", mock.Anything, 9).Return(nil, mediarepo.ErrAttachmentNotFound)

		_, err := svc.RelayAttachment(context.Background(), 9)

		assert.ErrorIs(t, err, ErrAttachmentNotFound)
	})
}

func TestResolveURL(t *testing.T) {
	t.Run("Remote URL is cached", func(t *testing.T) {
		svc, repo, _ := newTestService(t, Config{})
		repo.On("GetRemoteURL", mock.Anything, 1).Return("https://x/y.png", nil).Once()

		for i := 0; i < 3; i++ {
			u, err := svc.ResolveURL(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, "https://x/y.png", u)
		}
		repo.AssertNumberOfCalls(t, "GetRemoteURL", 1)
	})

	t.Run("Falls back to the local URL", func(t *testing.T) {
		svc, repo, _ := newTestService(t, Config{})
		repo.On("GetRemoteURL", mock.Anything, 2).Return("", nil)
		repo.On("GetAttachmentByID", mock.Anything, 2).Return(&mediarepo.Attachment{ID: 2, LocalURL: "http://localhost/uploads/a.png"}, nil)

		u, err := svc.ResolveURL(context.Background(), 2)

		require.NoError(t, err)
		assert.Equal(t, "http://localhost/uploads/a.png", u)
	})
}
