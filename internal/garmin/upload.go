package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// uploadPath is the connectapi endpoint that accepts FIT, GPX and TCX files.
const uploadPath = "/upload-service/upload"

// uploadFieldName is the multipart form field the upload service reads.
const uploadFieldName = "file"

// Upload sends the activity read from r as a multipart form upload. name is
// the file name reported to the service; only its base is used. r is read
// to EOF, so a retry needs a fresh reader.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) (*UploadResult, error) {
	fileName := norm.NFC.String(filepath.Base(name))

	c.logger.Info("uploading activity", slog.String("name", fileName))

	// The form is built in memory so the request carries a Content-Length;
	// activity files are small.
	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	if err := writeUploadForm(mw, fileName, r); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, uploadPath, mw.FormDataContentType(), &body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out uploadResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, fmt.Errorf("garmin: decoding upload response: %w", decErr)
	}

	result := out.DetailedImportResult

	c.logger.Info("upload accepted",
		slog.Int64("upload_id", result.UploadID),
		slog.Int("successes", len(result.Successes)),
		slog.Int("failures", len(result.Failures)),
	)

	return &result, nil
}

// writeUploadForm writes the single file part and the closing boundary.
func writeUploadForm(mw *multipart.Writer, fileName string, r io.Reader) error {
	part, err := mw.CreateFormFile(uploadFieldName, fileName)
	if err != nil {
		return fmt.Errorf("garmin: creating form part: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("garmin: reading activity: %w", err)
	}

	return mw.Close()
}
