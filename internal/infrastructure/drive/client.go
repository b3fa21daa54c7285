package drive

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

const (
	defaultSearchLimit = 15
	maxSearchLimit     = 100

	fileFields = "files(id,name,mimeType,webViewLink,modifiedTime)"
)

// Client implements the drive storage backend over the Drive v3 and
// Docs v1 REST APIs. Every call authenticates with the per-user access
// token carried in the credentials, never a client-wide one.
type Client struct {
	driveURL string
	docsURL  string
	http     *resty.Client
}

func New(driveURL, docsURL string) *Client {
	client := resty.New()
	client.SetTimeout(30 * time.Second)

	return &Client{
		driveURL: strings.TrimRight(driveURL, "/"),
		docsURL:  strings.TrimRight(docsURL, "/"),
		http:     client,
	}
}

type fileResource struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	WebViewLink  string    `json:"webViewLink,omitempty"`
	ModifiedTime time.Time `json:"modifiedTime,omitzero"`
}

type fileList struct {
	Files []fileResource `json:"files"`
}

func (c *Client) SearchByName(ctx context.Context, creds domain.Credentials, name string, limit int) ([]domain.DriveItem, error) {
	query := fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(name))
	return c.listFiles(ctx, creds, query, limit, "search files")
}

func (c *Client) ListChildren(ctx context.Context, creds domain.Credentials, folderID string, limit int) ([]domain.DriveItem, error) {
	if strings.TrimSpace(folderID) == "" {
		folderID = "root"
	}
	query := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
	return c.listFiles(ctx, creds, query, limit, "list children")
}

func (c *Client) EnsureFolder(ctx context.Context, creds domain.Credentials, name, parentID string) (domain.DriveItem, bool, error) {
	if strings.TrimSpace(parentID) == "" {
		parentID = "root"
	}
	existing, err := c.FindChildByName(ctx, creds, parentID, name)
	if err != nil {
		return domain.DriveItem{}, false, err
	}
	if existing != nil && existing.IsFolder() {
		return *existing, false, nil
	}

	var created fileResource
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("fields", "id,name,mimeType,webViewLink").
		SetBody(map[string]any{
			"name":     name,
			"mimeType": domain.FolderMIME,
			"parents":  []string{parentID},
		}).
		SetResult(&created).
		Post(c.driveURL + "/files")
	if err := mapDriveError("create folder", resp, err); err != nil {
		return domain.DriveItem{}, false, err
	}
	return toDriveItem(created), true, nil
}

// Delete moves the item to the trash rather than deleting permanently,
// so a confirmed mistake is still recoverable from the drive UI.
func (c *Client) Delete(ctx context.Context, creds domain.Credentials, itemID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(map[string]any{"trashed": true}).
		Patch(c.driveURL + "/files/" + itemID)
	return mapDriveError("trash item", resp, err)
}

func (c *Client) CreateDocument(ctx context.Context, creds domain.Credentials, title, folderID string) (*domain.Document, error) {
	body := map[string]any{
		"name":     title,
		"mimeType": domain.DocumentMIME,
	}
	if strings.TrimSpace(folderID) != "" {
		body["parents"] = []string{folderID}
	}

	var created fileResource
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("fields", "id,name,webViewLink").
		SetBody(body).
		SetResult(&created).
		Post(c.driveURL + "/files")
	if err := mapDriveError("create document", resp, err); err != nil {
		return nil, err
	}
	return &domain.Document{ID: created.ID, Title: created.Name, Link: created.WebViewLink}, nil
}

func (c *Client) FindChildByName(ctx context.Context, creds domain.Credentials, parentID, name string) (*domain.DriveItem, error) {
	if strings.TrimSpace(parentID) == "" {
		parentID = "root"
	}
	query := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false", escapeQuery(name), escapeQuery(parentID))
	items, err := c.listFiles(ctx, creds, query, 1, "find child")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (c *Client) DownloadFile(ctx context.Context, creds domain.Credentials, fileID string) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("alt", "media").
		Get(c.driveURL + "/files/" + fileID)
	if err := mapDriveError("download file", resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// UpsertFile replaces or creates one file; the media upload is the last
// step so readers never observe a half-written payload.
func (c *Client) UpsertFile(ctx context.Context, creds domain.Credentials, parentID, name string, payload []byte) (string, error) {
	existing, err := c.FindChildByName(ctx, creds, parentID, name)
	if err != nil {
		return "", err
	}

	fileID := ""
	if existing != nil {
		fileID = existing.ID
	} else {
		var created fileResource
		resp, err := c.http.R().
			SetContext(ctx).
			SetAuthToken(creds.AccessToken).
			SetBody(map[string]any{
				"name":    name,
				"parents": []string{parentID},
			}).
			SetResult(&created).
			Post(c.driveURL + "/files")
		if err := mapDriveError("create file", resp, err); err != nil {
			return "", err
		}
		fileID = created.ID
	}

	uploadURL := strings.Replace(c.driveURL, "/drive/v3", "/upload/drive/v3", 1)
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParam("uploadType", "media").
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Patch(uploadURL + "/files/" + fileID)
	if err := mapDriveError("upload file content", resp, err); err != nil {
		return "", err
	}
	return fileID, nil
}

func (c *Client) listFiles(ctx context.Context, creds domain.Credentials, query string, limit int, operation string) ([]domain.DriveItem, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var list fileList
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetQueryParams(map[string]string{
			"q":        query,
			"pageSize": strconv.Itoa(limit),
			"fields":   fileFields,
		}).
		SetResult(&list).
		Get(c.driveURL + "/files")
	if err := mapDriveError(operation, resp, err); err != nil {
		return nil, err
	}

	items := make([]domain.DriveItem, 0, len(list.Files))
	for _, file := range list.Files {
		items = append(items, toDriveItem(file))
	}
	return items, nil
}

func toDriveItem(file fileResource) domain.DriveItem {
	return domain.DriveItem{
		ID:           file.ID,
		Name:         file.Name,
		MimeType:     file.MimeType,
		WebViewLink:  file.WebViewLink,
		ModifiedTime: file.ModifiedTime,
	}
}

// escapeQuery escapes single quotes and backslashes for Drive query terms.
func escapeQuery(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	return strings.ReplaceAll(term, "'", `\'`)
}
