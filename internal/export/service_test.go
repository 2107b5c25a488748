package export

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sourcestack/resume-batch/internal/entity"
)

type fakeResults struct {
	candidates []entity.Candidate
	err        error
}

func (f *fakeResults) LoadResults(context.Context, string) ([]entity.Candidate, error) {
	return f.candidates, f.err
}

func TestExportJobXLSX(t *testing.T) {
	src := &fakeResults{candidates: []entity.Candidate{
		{
			Name:       "Ada Lovelace",
			Email:      "ada@example.com",
			Phone:      "+919876543210",
			LinkedIn:   "https://www.linkedin.com/in/ada",
			GitHub:     "https://github.com/ada",
			Confidence: 0.95,
			SourceFile: "ada.pdf",
		},
		{
			SourceFile: "broken.pdf",
			Errors:     []string{"Parse error: corrupt xref"},
		},
	}}

	data, err := NewService(src, nil).ExportJobXLSX(context.Background(), "job-1")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Candidates")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, "Confidence", rows[0][5])

	assert.Equal(t, "Ada Lovelace", rows[1][0])
	assert.Equal(t, "ada@example.com", rows[1][1])
	assert.Equal(t, "0.95", rows[1][5])

	assert.Equal(t, "broken.pdf", rows[2][6])
	assert.Contains(t, rows[2][7], "Parse error")
}

func TestExportJobXLSXUnknownJob(t *testing.T) {
	_, err := NewService(&fakeResults{}, nil).ExportJobXLSX(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestExportJobXLSXStoreFailure(t *testing.T) {
	src := &fakeResults{err: errors.New("disk gone")}
	_, err := NewService(src, nil).ExportJobXLSX(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load results")
}
