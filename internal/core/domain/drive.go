package domain

import "time"

const (
	FolderMIME   = "application/vnd.google-apps.folder"
	DocumentMIME = "application/vnd.google-apps.document"
)

// Credentials carries the per-request drive authorization. Tools receive
// it from the credential service; the planner never sees it.
type Credentials struct {
	UserID      string
	AccessToken string
}

type DriveItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mime_type,omitempty"`
	WebViewLink  string    `json:"link,omitempty"`
	ModifiedTime time.Time `json:"modified_time,omitzero"`
}

func (i DriveItem) IsFolder() bool {
	return i.MimeType == FolderMIME
}

type Document struct {
	ID    string `json:"document_id"`
	Title string `json:"title"`
	Link  string `json:"link"`
}
