// Package extract turns plain resume text into candidate contact fields.
// Everything here is pattern-based and stateless: no I/O, no learned models.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/nyaruka/phonenumbers"
)

// defaultCountryCode is prepended to bare 10-digit numbers before
// validation. Resumes without an explicit country code are assumed local.
const defaultCountryCode = "+91"

var (
	mailtoRegexes = []*regexp.Regexp{
		regexp.MustCompile(`mailto:\s*([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`),
		regexp.MustCompile(`href=["']mailto:([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})["']`),
	}
	keywordEmailRe = regexp.MustCompile(`(?:email|e-mail|mail)[\s:]*.*?(?:href=["'])?(?:mailto:)?([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})`)
	emailRe        = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)

	phoneCleanRe       = regexp.MustCompile(`[\s\-().]`)
	digitSeqRe         = regexp.MustCompile(`\d{7,15}`)
	nameStartsNumberRe = regexp.MustCompile(`^\+?\d`)

	linkedInHrefRes = []*regexp.Regexp{
		regexp.MustCompile(`href=["'](https?://(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-]+)["']`),
		regexp.MustCompile(`href=["'](linkedin\.com/in/[a-zA-Z0-9\-]+)["']`),
	}
	linkedInKeywordRe = regexp.MustCompile(`(?:linkedin|linked\s*in)[\s:]*.*?(?:href=["'])?(https?://(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-]+)`)
	linkedInPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/([a-zA-Z0-9\-]+)`),
		regexp.MustCompile(`linkedin\.com/in/([a-zA-Z0-9\-]+)`),
		regexp.MustCompile(`www\.linkedin\.com/in/([a-zA-Z0-9\-]+)`),
		regexp.MustCompile(`linkedin\.com/profile/view\?id=([a-zA-Z0-9\-]+)`),
	}
	linkedInFallbackRe = regexp.MustCompile(`https?://(?:www\.)?linkedin\.com/in/[a-zA-Z0-9\-]+`)

	gitHubHrefRes = []*regexp.Regexp{
		regexp.MustCompile(`href=["'](https?://(?:www\.)?github\.com/[A-Za-z0-9-]{1,39})["']`),
		regexp.MustCompile(`href=["'](github\.com/[A-Za-z0-9-]{1,39})["']`),
	}
	gitHubKeywordRe = regexp.MustCompile(`(?:github|git\s*hub)[\s:]*.*?(?:href=["'])?(https?://(?:www\.)?github\.com/[A-Za-z0-9-]{1,39})`)
	gitHubPatterns  = []*regexp.Regexp{
		regexp.MustCompile(`https?://(?:www\.)?github\.com/([A-Za-z0-9-]{1,39})`),
		regexp.MustCompile(`github\.com/([A-Za-z0-9-]{1,39})`),
		regexp.MustCompile(`www\.github\.com/([A-Za-z0-9-]{1,39})`),
	}
	gitHubFallbackRe = regexp.MustCompile(`https?://(?:www\.)?github\.com/[A-Za-z0-9-]{1,39}`)
)

// ExtractEmail finds the most trustworthy email in the text: mailto links
// first, then an address near an email keyword, then the first bare
// address. The result is lower-cased; empty means none found.
func ExtractEmail(text string) string {
	for _, re := range mailtoRegexes {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ToLower(m[1])
		}
	}

	if m := keywordEmailRe.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1])
	}

	return strings.ToLower(emailRe.FindString(text))
}

// NormalizePhone returns the first phone number in the text that validates
// against international numbering rules, formatted E.164. A strict parse is
// tried first; failing that, punctuation is stripped and digit runs of 7-15
// are tested, prefixing 10-digit runs with the default country code and
// longer runs with "+".
func NormalizePhone(text string) string {
	if normalized := formatIfValidPhone(text); normalized != "" {
		return normalized
	}

	cleaned := phoneCleanRe.ReplaceAllString(text, "")
	for _, digits := range digitSeqRe.FindAllString(cleaned, -1) {
		var candidate string
		switch {
		case len(digits) == 10:
			candidate = defaultCountryCode + digits
		case len(digits) > 10:
			candidate = "+" + digits
		default:
			candidate = digits
		}

		if normalized := formatIfValidPhone(candidate); normalized != "" {
			return normalized
		}
	}

	return ""
}

// ExtractLinkedIn finds a LinkedIn profile URL, normalized to
// https://www.linkedin.com/in/<user> when only a username form is present.
func ExtractLinkedIn(text string) string {
	for _, re := range linkedInHrefRes {
		if m := re.FindStringSubmatch(text); m != nil {
			url := m[1]
			if !strings.HasPrefix(strings.ToLower(url), "http") {
				url = "https://www." + url
			}
			return url
		}
	}

	if m := linkedInKeywordRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	for _, re := range linkedInPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return "https://www.linkedin.com/in/" + m[1]
		}
	}

	return linkedInFallbackRe.FindString(text)
}

// ExtractGitHub finds a GitHub profile URL. Usernames are limited to the
// platform's 39-character alphanumeric-and-hyphen set by the patterns.
func ExtractGitHub(text string) string {
	for _, re := range gitHubHrefRes {
		if m := re.FindStringSubmatch(text); m != nil {
			url := m[1]
			if !strings.HasPrefix(strings.ToLower(url), "http") {
				url = "https://" + url
			}
			return url
		}
	}

	if m := gitHubKeywordRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}

	for _, re := range gitHubPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return "https://github.com/" + m[1]
		}
	}

	return gitHubFallbackRe.FindString(text)
}

// GuessName scans the top of the document for a line that looks like a
// person's name: the first 30 lines, plus any line immediately above a
// contact keyword within the first 50. Lines with emails, leading digits,
// or anything but 2-4 capitalized words are rejected.
func GuessName(text string) string {
	lines := strings.Split(text, "\n")

	limit := min(len(lines), 30)
	candidates := make([]string, 0, limit+4)
	candidates = append(candidates, lines[:limit]...)

	keywords := []string{"email", "phone", "contact", "mobile", "tel"}
	for i := 0; i < min(len(lines), 50); i++ {
		lower := strings.ToLower(lines[i])
		for _, k := range keywords {
			if strings.Contains(lower, k) && i > 0 {
				candidates = append(candidates, lines[i-1])
				break
			}
		}
	}

	for _, raw := range candidates {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.Contains(line, "@") || len(line) > 50 || nameStartsNumberRe.MatchString(line) {
			continue
		}

		words := strings.Fields(line)
		if len(words) < 2 || len(words) > 4 {
			continue
		}

		allCapitalized := true
		for _, w := range words {
			r := []rune(w)[0]
			if !unicode.IsUpper(r) {
				allCapitalized = false
				break
			}
		}
		if allCapitalized {
			return line
		}
	}

	return ""
}

// ScoreConfidence computes the weighted confidence for an extraction:
// email 0.40, phone 0.25, name 0.15, LinkedIn 0.10, GitHub 0.05, plus 0.05
// when the text came straight from the document rather than OCR. Capped at 1.
func ScoreConfidence(name, email, phone, linkedIn, gitHub string, ocrUsed bool) float64 {
	score := 0.0

	if strings.TrimSpace(email) != "" {
		score += 0.4
	}
	if strings.TrimSpace(phone) != "" {
		score += 0.25
	}
	if strings.TrimSpace(name) != "" {
		score += 0.15
	}
	if strings.TrimSpace(linkedIn) != "" {
		score += 0.1
	}
	if strings.TrimSpace(gitHub) != "" {
		score += 0.05
	}
	if !ocrUsed {
		score += 0.05
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func formatIfValidPhone(input string) string {
	parsed, err := phonenumbers.Parse(input, "")
	if err != nil {
		return ""
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return ""
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
