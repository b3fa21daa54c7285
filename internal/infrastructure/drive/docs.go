package drive

import (
	"context"
	"strings"

	"github.com/dmpolyakov/ai-drive-agent/internal/core/domain"
)

type docsDocument struct {
	Body struct {
		Content []struct {
			EndIndex  int `json:"endIndex"`
			Paragraph *struct {
				Elements []struct {
					TextRun *struct {
						Content string `json:"content"`
					} `json:"textRun,omitempty"`
				} `json:"elements"`
			} `json:"paragraph,omitempty"`
		} `json:"content"`
	} `json:"body"`
}

func (c *Client) ReadDocument(ctx context.Context, creds domain.Credentials, documentID string) (string, error) {
	doc, err := c.getDocument(ctx, creds, documentID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, element := range doc.Body.Content {
		if element.Paragraph == nil {
			continue
		}
		for _, pe := range element.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String(), nil
}

// WriteDocument clears the document body and inserts the rendered
// markdown in a single batchUpdate, so readers never see a mix of old
// and new content.
func (c *Client) WriteDocument(ctx context.Context, creds domain.Credentials, documentID, markdown string) error {
	doc, err := c.getDocument(ctx, creds, documentID)
	if err != nil {
		return err
	}

	requests := make([]map[string]any, 0, 8)
	if end := documentEndIndex(doc); end > 2 {
		// The final newline of the body segment cannot be deleted.
		requests = append(requests, map[string]any{
			"deleteContentRange": map[string]any{
				"range": map[string]any{"startIndex": 1, "endIndex": end - 1},
			},
		})
	}
	requests = append(requests, insertRequests(1, markdown)...)
	return c.batchUpdate(ctx, creds, documentID, requests, "write document")
}

func (c *Client) AppendDocument(ctx context.Context, creds domain.Credentials, documentID, markdown string) error {
	doc, err := c.getDocument(ctx, creds, documentID)
	if err != nil {
		return err
	}

	insertAt := documentEndIndex(doc) - 1
	if insertAt < 1 {
		insertAt = 1
	}
	return c.batchUpdate(ctx, creds, documentID, insertRequests(insertAt, markdown), "append document")
}

// insertRequests builds one insertText plus the heading style updates.
func insertRequests(index int, markdown string) []map[string]any {
	text, styles := renderMarkdown(markdown)
	if text == "" {
		return nil
	}

	requests := make([]map[string]any, 0, len(styles)+1)
	requests = append(requests, map[string]any{
		"insertText": map[string]any{
			"location": map[string]any{"index": index},
			"text":     text,
		},
	})
	for _, style := range styles {
		requests = append(requests, map[string]any{
			"updateParagraphStyle": map[string]any{
				"range": map[string]any{
					"startIndex": index + style.start,
					"endIndex":   index + style.end,
				},
				"paragraphStyle": map[string]any{"namedStyleType": style.named},
				"fields":         "namedStyleType",
			},
		})
	}
	return requests
}

func (c *Client) getDocument(ctx context.Context, creds domain.Credentials, documentID string) (*docsDocument, error) {
	var doc docsDocument
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetResult(&doc).
		Get(c.docsURL + "/documents/" + documentID)
	if err := mapDriveError("get document", resp, err); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *Client) batchUpdate(ctx context.Context, creds domain.Credentials, documentID string, requests []map[string]any, operation string) error {
	if len(requests) == 0 {
		return nil
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(creds.AccessToken).
		SetBody(map[string]any{"requests": requests}).
		Post(c.docsURL + "/documents/" + documentID + ":batchUpdate")
	return mapDriveError(operation, resp, err)
}

func documentEndIndex(doc *docsDocument) int {
	end := 1
	for _, element := range doc.Body.Content {
		if element.EndIndex > end {
			end = element.EndIndex
		}
	}
	return end
}
