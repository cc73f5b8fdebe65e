package glpi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/deskbridge/deskbridge/internal/domain"
	"github.com/deskbridge/deskbridge/internal/transport"
)

// UploadDocument stores one file and returns the document identifier. The
// endpoint wants a multipart body: an uploadManifest field naming the file
// and the file content itself under filename[0].
func (c *Client) UploadDocument(ctx context.Context, filename string, data []byte) (int, error) {
	manifest, err := json.Marshal(inputPayload{Input: map[string]any{
		"name":      filename,
		"_filename": []string{filename},
	}})
	if err != nil {
		return 0, fmt.Errorf("upload document: encode manifest: %w", err)
	}

	var docID int
	err = c.call.Call(ctx, "upload document", func(ctx context.Context) error {
		c.mu.RLock()
		token := c.session
		c.mu.RUnlock()
		if token == "" {
			return domain.ErrNoSession
		}

		// The body is rebuilt on every attempt; a replayed reader would
		// arrive empty.
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		field, err := w.CreateFormField("uploadManifest")
		if err != nil {
			return fmt.Errorf("create manifest field: %w", err)
		}
		if _, err := field.Write(manifest); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		file, err := w.CreateFormFile("filename[0]", filename)
		if err != nil {
			return fmt.Errorf("create file field: %w", err)
		}
		if _, err := file.Write(data); err != nil {
			return fmt.Errorf("write file content: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("finalize multipart body: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/Document", &buf)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Session-Token", token)
		req.Header.Set("App-Token", c.appToken)
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %v", domain.ErrSessionExpired, transport.NewStatusError("upload document", resp))
		}
		if resp.StatusCode/100 != 2 {
			return transport.NewStatusError("upload document", resp)
		}

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		var out struct {
			ID int `json:"id"`
		}
		if err := json.Unmarshal(b, &out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		docID = out.ID
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upload document %q: %w", filename, err)
	}
	if docID == 0 {
		return 0, fmt.Errorf("upload document %q: server returned no id", filename)
	}
	return docID, nil
}

// LinkDocument associates an uploaded document with a ticket.
func (c *Client) LinkDocument(ctx context.Context, docID, ticketID int) error {
	input := map[string]any{
		"documents_id": docID,
		"itemtype":     "Ticket",
		"items_id":     ticketID,
	}
	u := c.baseURL + "/Document_Item"
	if err := c.do(ctx, "link document", http.MethodPost, u, inputPayload{Input: input}, nil); err != nil {
		return fmt.Errorf("link document %d to ticket %d: %w", docID, ticketID, err)
	}
	return nil
}
