// internal/extraction/extraction.go

// Package extraction turns raw collected text into candidate records:
// contact addresses, a best-effort organization name, and the cheap
// relevance screen that runs before any model is consulted.
package extraction

import (
	"regexp"
	"strings"
	"time"

	"github.com/xkilldash9x/prospect-cli/api/schemas"
)

// addressPattern matches the practical subset of addresses seen in postings.
var addressPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// automatedSenders are local-part markers for unattended mailboxes. Writing
// to these reaches no one.
var automatedSenders = []string{
	"no-reply",
	"noreply",
	"no_reply",
	"donotreply",
	"do-not-reply",
	"mailer-daemon",
	"postmaster",
	"bounce",
	"notifications@",
	"notification@",
	"alerts@",
	"unsubscribe",
}

// jobIndicators is the vocabulary the relevance screen looks for. Any single
// hit counts; the screen is meant to be cheap and permissive, not precise.
var jobIndicators = []string{
	"hiring",
	"job",
	"position",
	"role",
	"opening",
	"opportunity",
	"vacancy",
	"career",
	"apply",
	"applicant",
	"recruit",
	"engineer",
	"developer",
	"salary",
	"remote",
	"full-time",
	"part-time",
	"contract",
}

// orgToken is one to three capitalized words. Dots are excluded so a capture
// cannot run across a sentence boundary.
const orgToken = `([A-Z][A-Za-z0-9&'\-]*(?:\s+[A-Z][A-Za-z0-9&'\-]*){0,2})`

// Organization patterns, tried in order. The anchor word matches
// case-insensitively; the organization itself must be capitalized.
var orgPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?i:at)\s+` + orgToken),
	regexp.MustCompile(`\b(?i:join)\s+` + orgToken),
	regexp.MustCompile(orgToken + `\s+(?i:is\s+hiring)`),
	regexp.MustCompile(orgToken + `\s+(?i:team)\b`),
}

// ExtractAddresses returns the usable contact addresses found in text,
// lowercased, in first-occurrence order, with automated mailboxes dropped
// and case-insensitive duplicates collapsed to one entry.
func ExtractAddresses(text string) []string {
	matches := addressPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		addr := strings.ToLower(strings.Trim(m, "."))
		if _, dup := seen[addr]; dup {
			continue
		}
		if isAutomatedSender(addr) {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

func isAutomatedSender(addr string) bool {
	for _, marker := range automatedSenders {
		if strings.Contains(addr, marker) {
			return true
		}
	}
	return false
}

// GuessOrganization infers the hiring organization from posting text using
// the anchor patterns in order, falling back to the author label when no
// pattern matches. Returns "" when nothing is known.
func GuessOrganization(text, authorLabel string) string {
	for _, p := range orgPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			if org := cleanOrganization(m[1]); org != "" {
				return org
			}
		}
	}
	return strings.TrimSpace(authorLabel)
}

// orgNoise lists capitalized sentence-position words that the anchor
// patterns tend to capture but that never name an organization.
var orgNoise = map[string]bool{
	"The": true, "A": true, "An": true, "Our": true, "My": true, "This": true,
	"We": true, "I": true, "Your": true,
}

func cleanOrganization(raw string) string {
	org := strings.TrimSpace(strings.Trim(raw, ".,;:!?"))
	words := strings.Fields(org)
	// Drop leading article-like captures ("at The Acme Corp" -> "Acme Corp").
	for len(words) > 0 && orgNoise[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// IsLikelyRelevant is the pre-model screen: the text must mention at least
// one job-indicator word, and either contain the search keyword or be long
// enough to plausibly be a posting rather than a stray mention.
func IsLikelyRelevant(text, keyword string) bool {
	lower := strings.ToLower(text)

	indicated := false
	for _, w := range jobIndicators {
		if strings.Contains(lower, w) {
			indicated = true
			break
		}
	}
	if !indicated {
		return false
	}

	if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
		return true
	}
	return len(text) > 100
}

// NewCandidate builds a candidate record from one collected unit: addresses
// extracted, organization guessed, classification left for the model stage.
func NewCandidate(keyword string, unit schemas.RawUnit) schemas.CandidateRecord {
	return schemas.CandidateRecord{
		SourceKeyword:        keyword,
		RawContent:           unit.Content,
		ExtractedAddresses:   ExtractAddresses(unit.Content),
		AuthorLabel:          unit.AuthorLabel,
		InferredOrganization: GuessOrganization(unit.Content, unit.AuthorLabel),
		ExtractedAt:          time.Now().UTC(),
	}
}

// ExtractCandidates screens a batch of collected units and builds candidate
// records for the ones that survive: units with no content or failing the
// relevance screen are dropped.
func ExtractCandidates(units []schemas.RawUnit, keyword string) []schemas.CandidateRecord {
	candidates := make([]schemas.CandidateRecord, 0, len(units))
	for _, unit := range units {
		content := strings.TrimSpace(unit.Content)
		if content == "" {
			continue
		}
		if !IsLikelyRelevant(content, keyword) {
			continue
		}
		candidates = append(candidates, NewCandidate(keyword, unit))
	}
	return candidates
}

// IsActionable decides whether a classified candidate justifies an outbound
// action: the model judged it a legitimate posting, its relevance clears the
// threshold, and there is somewhere to send to. A nil classification is
// never actionable.
func IsActionable(rec schemas.CandidateRecord, threshold int) bool {
	if rec.Classification == nil {
		return false
	}
	if !rec.Classification.IsLegitimate {
		return false
	}
	if rec.Classification.RelevanceScore < threshold {
		return false
	}
	return rec.HasAddresses()
}
