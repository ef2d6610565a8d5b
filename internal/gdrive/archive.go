package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/sjawhar/codereflex/internal/submission"
)

const docMimeType = "application/vnd.google-apps.document"

// Archiver uploads interview reports into a Drive folder as Google Docs.
// Archiving the same interview again replaces the existing document.
type Archiver struct {
	service  *drive.Service
	folderID string

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewArchiver(ctx context.Context, credPath, folderID string) (*Archiver, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return newArchiver(ctx, folderID, option.WithCredentials(config))
}

func newArchiver(ctx context.Context, folderID string, opts ...option.ClientOption) (*Archiver, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Archiver{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

func (a *Archiver) Archive(ctx context.Context, result submission.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	body := strings.NewReader(result.FormatMarkdown())

	if fileID, ok := a.fileIDs[result.InterviewID]; ok {
		_, err := a.service.Files.Update(fileID, &drive.File{}).Media(body).Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	var parents []string
	if a.folderID != "" {
		parents = []string{a.folderID}
	}
	doc, err := a.service.Files.Create(&drive.File{
		Name:     DocumentName(result),
		MimeType: docMimeType,
		Parents:  parents,
	}).Media(body).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	a.fileIDs[result.InterviewID] = doc.Id
	return nil
}

func DocumentName(result submission.Result) string {
	return fmt.Sprintf("codereflex-%s-%s", result.EndedAt.UTC().Format("2006-01-02"), result.InterviewID)
}
