package entity

// ExtractionResult is the outcome of parsing a single resume document.
// Field values are empty strings when nothing was found. Errors collects
// non-fatal problems hit along the way; a result with errors and no text
// carries zero confidence.
type ExtractionResult struct {
	Name       string   `json:"name,omitempty"`
	Email      string   `json:"email,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	LinkedIn   string   `json:"linked_in,omitempty"`
	GitHub     string   `json:"git_hub,omitempty"`
	Confidence float64  `json:"confidence"`
	OCRUsed    bool     `json:"ocr_used"`
	Errors     []string `json:"errors,omitempty"`
}

// Candidate is one processed file in a batch: the extraction result plus
// where the file came from.
type Candidate struct {
	RemoteFileID string   `json:"remote_file_id,omitempty"`
	SourceFile   string   `json:"source_file,omitempty"`
	Name         string   `json:"name,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	LinkedIn     string   `json:"linked_in,omitempty"`
	GitHub       string   `json:"git_hub,omitempty"`
	Confidence   float64  `json:"confidence"`
	Errors       []string `json:"errors,omitempty"`
}

// EmptyCandidate builds a zero-confidence candidate carrying only
// provenance and error messages.
func EmptyCandidate(sourceFile, remoteFileID string, errs []string) Candidate {
	return Candidate{
		RemoteFileID: remoteFileID,
		SourceFile:   sourceFile,
		Errors:       errs,
	}
}

// CandidateFromResult pairs an extraction result with its source file.
func CandidateFromResult(res ExtractionResult, sourceFile, remoteFileID string) Candidate {
	return Candidate{
		RemoteFileID: remoteFileID,
		SourceFile:   sourceFile,
		Name:         res.Name,
		Email:        res.Email,
		Phone:        res.Phone,
		LinkedIn:     res.LinkedIn,
		GitHub:       res.GitHub,
		Confidence:   res.Confidence,
		Errors:       res.Errors,
	}
}
