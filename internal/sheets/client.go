// Package sheets is a thin Google Sheets REST client: it creates result
// spreadsheets and appends rows, deduplicating header lines so repeated
// writes into an existing sheet stay clean.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sourcestack/resume-batch/internal/common"
	"github.com/sourcestack/resume-batch/internal/googleapi"
)

const (
	defaultBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

	defaultSheetTitle = "Resume Data"
)

// Client talks to the Sheets v4 API with a caller-supplied access token.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 45 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{http: httpClient, baseURL: defaultBaseURL, logger: logger}
}

type sheetProperties struct {
	Title string `json:"title"`
}

type sheetSpec struct {
	Properties sheetProperties `json:"properties"`
}

type createRequest struct {
	Properties sheetProperties `json:"properties"`
	Sheets     []sheetSpec     `json:"sheets"`
}

type createResponse struct {
	SpreadsheetID string `json:"spreadsheetId"`
}

// CreateSpreadsheet creates a new spreadsheet with a single sheet and
// returns its id.
func (c *Client) CreateSpreadsheet(ctx context.Context, accessToken, title string) (string, error) {
	req := createRequest{
		Properties: sheetProperties{Title: title},
		Sheets:     []sheetSpec{{Properties: sheetProperties{Title: defaultSheetTitle}}},
	}

	var resp createResponse
	if err := googleapi.DoJSON(ctx, c.http, http.MethodPost, c.baseURL, accessToken, &req, &resp, c.logger); err != nil {
		return "", common.WrapError(err, "create spreadsheet")
	}
	if resp.SpreadsheetID == "" {
		return "", common.WrapError(common.ErrInternal, "create spreadsheet returned no id")
	}

	c.logger.Info("sheets.created", "spreadsheet_id", resp.SpreadsheetID, "title", title)
	return resp.SpreadsheetID, nil
}

type valueRange struct {
	Values [][]string `json:"values"`
}

// AppendRows writes rows to the first sheet and returns how many were
// written. An empty spreadsheet gets its first rows via an overwrite at
// A1; otherwise rows are appended after the existing data. With
// skipHeaders set, rows matching the header line and rows with no values
// at all are dropped before writing.
func (c *Client) AppendRows(ctx context.Context, accessToken, spreadsheetID string, rows [][]string, skipHeaders bool) (int, error) {
	if skipHeaders {
		rows = filterDataRows(rows)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	empty, err := c.isSheetEmpty(ctx, accessToken, spreadsheetID)
	if err != nil {
		return 0, err
	}

	body := valueRange{Values: rows}
	if empty {
		endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
			c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape("A1"))
		if err := googleapi.DoJSON(ctx, c.http, http.MethodPut, endpoint, accessToken, &body, nil, c.logger); err != nil {
			return 0, common.WrapError(err, "write rows")
		}
	} else {
		endpoint := fmt.Sprintf("%s/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
			c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape("A1"))
		if err := googleapi.DoJSON(ctx, c.http, http.MethodPost, endpoint, accessToken, &body, nil, c.logger); err != nil {
			return 0, common.WrapError(err, "append rows")
		}
	}

	c.logger.Info("sheets.rows_written", "spreadsheet_id", spreadsheetID, "rows", len(rows), "overwrite", empty)
	return len(rows), nil
}

// isSheetEmpty probes the first row. A sheet with no values in A1:Z1 is
// treated as empty.
func (c *Client) isSheetEmpty(ctx context.Context, accessToken, spreadsheetID string) (bool, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape("A1:Z1"))

	var probe valueRange
	if err := googleapi.DoJSON(ctx, c.http, http.MethodGet, endpoint, accessToken, nil, &probe, c.logger); err != nil {
		return false, common.WrapError(err, "probe first row")
	}
	return len(probe.Values) == 0, nil
}

// filterDataRows drops header lines and rows with no content.
func filterDataRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isHeaderRow(row) || isEmptyRow(row) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func isHeaderRow(row []string) bool {
	return len(row) > 0 && row[0] == "Name"
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}
