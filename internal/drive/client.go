// Package drive is a thin Google Drive REST client covering the two calls
// batch jobs need: listing the resumes in a folder and downloading file
// content.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/entity"
	"github.com/sourcestack/resume-batch/internal/googleapi"
)

const (
	defaultBaseURL = "https://www.googleapis.com/drive/v3"

	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Client talks to the Drive v3 API with a caller-supplied access token.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, baseURL: defaultBaseURL, logger: logger}
}

type listResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		MIMEType string `json:"mimeType"`
	} `json:"files"`
}

// ListResumeFiles returns every non-trashed PDF and DOCX in the folder,
// following pagination until the listing is exhausted.
func (c *Client) ListResumeFiles(ctx context.Context, accessToken, folderID string) ([]entity.RemoteFileRef, error) {
	query := fmt.Sprintf("'%s' in parents and (mimeType='%s' or mimeType='%s') and trashed=false",
		folderID, mimePDF, mimeDOCX)

	var files []entity.RemoteFileRef
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("q", query)
		params.Set("fields", "nextPageToken,files(id,name,mimeType)")
		params.Set("pageSize", "1000")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page listResponse
		endpoint := c.baseURL + "/files?" + params.Encode()
		if err := googleapi.DoJSON(ctx, c.http, http.MethodGet, endpoint, accessToken, nil, &page, c.logger); err != nil {
			return nil, common.WrapError(err, "list drive folder")
		}

		for _, f := range page.Files {
			files = append(files, entity.RemoteFileRef{ID: f.ID, Name: f.Name, MIMEType: f.MIMEType})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Info("drive.list", "folder_id", folderID, "files", len(files))
	return files, nil
}

// DownloadFile fetches the raw content of one file.
func (c *Client) DownloadFile(ctx context.Context, accessToken, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, url.PathEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, common.WrapError(err, "build download request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, common.WrapError(err, "download file")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.WrapError(err, "read file body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, &common.RemoteAPIError{StatusCode: resp.StatusCode, Body: googleapi.Truncate(body, 512)}
	}

	c.logger.Info("drive.download",
		"file_id", fileID,
		"bytes", len(body),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return body, nil
}
