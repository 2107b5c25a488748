package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractEmailFindsStandardAddresses(t *testing.T) {
	assert.Equal(t, "john.doe@example.com", ExtractEmail("Contact me at john.doe@example.com"))
	assert.Equal(t, "jane.smith@company.co.uk", ExtractEmail("Email: jane.smith@company.co.uk"))
	assert.Equal(t, "", ExtractEmail("No address here"))
}

func TestExtractEmailPrefersMailtoLinks(t *testing.T) {
	text := `Reach me at decoy@other.com or <a href="mailto:Real.Person@Example.com">mail me</a>`
	assert.Equal(t, "real.person@example.com", ExtractEmail(text))

	assert.Equal(t, "plain@example.com", ExtractEmail("mailto: plain@example.com somewhere"))
}

func TestExtractEmailLowercasesResult(t *testing.T) {
	assert.Equal(t, "mixed.case@example.com", ExtractEmail("MIXED.CASE@EXAMPLE.COM"))
}

func TestNormalizePhoneHandlesLocalDefaultsAndFormattedNumbers(t *testing.T) {
	assert.Equal(t, "+919876543210", NormalizePhone("9876543210"))
	assert.Equal(t, "+919876543210", NormalizePhone("98765 43210"))
	assert.Equal(t, "+919876543210", NormalizePhone("(987) 654-3210"))
	assert.Equal(t, "+919876543210", NormalizePhone("+919876543210"))

	// 555 area codes are not assigned, so validation may reject this one.
	if us := NormalizePhone("+1-212-555-0123"); us != "" {
		assert.True(t, len(us) > 2 && us[:2] == "+1")
	}
}

func TestNormalizePhoneRejectsShortAndNonNumericInput(t *testing.T) {
	assert.Equal(t, "", NormalizePhone("12345"))
	assert.Equal(t, "", NormalizePhone("not a phone"))
	assert.Equal(t, "", NormalizePhone(""))
}

func TestExtractLinkedInFormatsSupportedValues(t *testing.T) {
	assert.Equal(t, "https://www.linkedin.com/in/johndoe", ExtractLinkedIn("Visit linkedin.com/in/johndoe"))
	assert.Equal(t, "https://www.linkedin.com/in/jane-smith", ExtractLinkedIn("LinkedIn: https://www.linkedin.com/in/jane-smith"))
	assert.Equal(t, "", ExtractLinkedIn("No profile here"))
}

func TestExtractLinkedInPrefersHrefAttributes(t *testing.T) {
	text := `see linkedin.com/in/decoy and <a href="https://www.linkedin.com/in/the-real-one">me</a>`
	assert.Equal(t, "https://www.linkedin.com/in/the-real-one", ExtractLinkedIn(text))

	assert.Equal(t,
		"https://www.linkedin.com/in/short-form",
		ExtractLinkedIn(`<a href="linkedin.com/in/short-form">profile</a>`))
}

func TestExtractGitHubFormatsSupportedValues(t *testing.T) {
	assert.Equal(t, "https://github.com/johndoe", ExtractGitHub("Check github.com/johndoe"))
	assert.Equal(t, "https://github.com/jane-smith", ExtractGitHub("GitHub: https://github.com/jane-smith"))
	assert.Equal(t, "", ExtractGitHub("No profile here"))
}

func TestGuessNamePicksTopOfDocument(t *testing.T) {
	text := "John Doe\nSoftware Engineer\njohn@example.com\n"
	assert.Equal(t, "John Doe", GuessName(text))
}

func TestGuessNameUsesLineAboveContactKeyword(t *testing.T) {
	lines := []string{
		"RESUME RESUME RESUME RESUME RESUME RESUME RESUME RESUME",
		"objective statement that is rather long and lowercase anyway",
	}
	// Pad so the name sits past the first 30 lines but within the first 50.
	for i := 0; i < 30; i++ {
		lines = append(lines, "experience item number whatever goes right here okay")
	}
	lines = append(lines, "Priya Sharma", "Email: priya@example.com")

	text := ""
	for _, l := range lines {
		text += l + "\n"
	}
	assert.Equal(t, "Priya Sharma", GuessName(text))
}

func TestGuessNameRejectsBadCandidates(t *testing.T) {
	assert.Equal(t, "", GuessName("john@example.com\n+91 98765 43210\n"))
	assert.Equal(t, "", GuessName("A Very Long Line That Cannot Possibly Be A Name Because It Just Keeps Going\n"))
	assert.Equal(t, "", GuessName("lowercase words only\n"))
	assert.Equal(t, "", GuessName("Single\n"))
}

func TestScoreConfidenceMatchesWeights(t *testing.T) {
	all := ScoreConfidence("John Doe", "john@example.com", "+919876543210",
		"https://linkedin.com/in/johndoe", "https://github.com/johndoe", false)
	assert.InDelta(t, 1.0, all, 0.001)

	assert.InDelta(t, 0.7, ScoreConfidence("", "john@example.com", "+919876543210", "", "", false), 0.001)
	assert.InDelta(t, 0.45, ScoreConfidence("", "john@example.com", "", "", "", false), 0.001)
	assert.InDelta(t, 0.05, ScoreConfidence("", "", "", "", "", false), 0.001)
	assert.InDelta(t, 0.0, ScoreConfidence("", "", "", "", "", true), 0.001)
}

func TestScoreConfidenceIsMonotonicAndClamped(t *testing.T) {
	base := ScoreConfidence("", "", "", "", "", true)
	withEmail := ScoreConfidence("", "a@b.co", "", "", "", true)
	withBoth := ScoreConfidence("", "a@b.co", "+919876543210", "", "", true)
	assert.GreaterOrEqual(t, withEmail, base)
	assert.GreaterOrEqual(t, withBoth, withEmail)

	all := ScoreConfidence("A B", "a@b.co", "+919876543210", "x", "y", false)
	assert.LessOrEqual(t, all, 1.0)
}
