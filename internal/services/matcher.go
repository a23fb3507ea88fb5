package services

import (
	"regexp"
	"strings"

	"meetingmind/internal/models"
)

// Matcher signal weights. Job numbers carry the highest single weight because
// they are the least ambiguous identifier a transcript can contain.
const (
	nameWeight         = 0.4
	jobNumberWeight    = 0.6
	addressTokenWeight = 0.2
	clientWeight       = 0.3

	// matchThreshold trades recall for precision: a weak or missing match is
	// preferred over a wrong one polluting a project's insight history.
	matchThreshold = 0.3

	// preassignedConfidence is reported when the ingestion pipeline or a
	// human already set the project; prior assignment is trusted over
	// inference.
	preassignedConfidence = 0.95

	// transcriptScanLimit bounds indicator extraction to the opening of the
	// transcript, where meetings state their context.
	transcriptScanLimit = 5000
)

// Transcript phrase patterns that tend to carry project identity.
var transcriptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`project\s+([a-z0-9][a-z0-9 \-']{2,40})`),
	regexp.MustCompile(`job\s*(?:number|no\.?|#)\s*[:#]?\s*([a-z0-9\-]{2,20})`),
	regexp.MustCompile(`client\s*:?\s+([a-z][a-z0-9 \-']{2,40})`),
	regexp.MustCompile(`working\s+on\s+(?:the\s+)?([a-z0-9][a-z0-9 \-']{2,40})`),
	regexp.MustCompile(`regarding\s+(?:the\s+)?([a-z0-9][a-z0-9 \-']{2,40})\s+project`),
	regexp.MustCompile(`\b(\d{3,6})\s+(?:project|job)\b`),
}

// MatchProjectContext associates a meeting with its most likely project. It is
// a pure function of its inputs: no side effects, nothing cached, the caller
// decides whether to persist the result.
func MatchProjectContext(meeting *models.Meeting, transcript string, candidates []models.Project) models.ProjectMatch {
	// A prior assignment short-circuits inference entirely
	if meeting.ProjectID != nil {
		id := *meeting.ProjectID
		return models.ProjectMatch{
			ProjectID:  &id,
			Confidence: preassignedConfidence,
			MatchedOn:  []string{"existing_assignment"},
		}
	}

	indicators := extractIndicators(meeting, transcript)

	var best *models.Project
	var bestScore float64
	var bestMatchedOn []string

	for i := range candidates {
		score, matchedOn := scoreCandidate(&candidates[i], indicators)
		if score > bestScore {
			best = &candidates[i]
			bestScore = score
			bestMatchedOn = matchedOn
		}
	}

	if best == nil || bestScore <= matchThreshold {
		return models.ProjectMatch{Confidence: 0}
	}

	id := best.ID
	return models.ProjectMatch{
		ProjectID:  &id,
		Confidence: bestScore,
		MatchedOn:  bestMatchedOn,
	}
}

// extractIndicators builds the lowercase indicator set from the meeting title,
// participant emails (plus each domain's first label) and phrase patterns over
// the opening of the transcript.
func extractIndicators(meeting *models.Meeting, transcript string) []string {
	var indicators []string

	if title := strings.ToLower(strings.TrimSpace(meeting.Title)); title != "" {
		indicators = append(indicators, title)
	}

	for _, participant := range meeting.Participants {
		email := strings.ToLower(strings.TrimSpace(participant))
		if email == "" {
			continue
		}
		indicators = append(indicators, email)
		if at := strings.Index(email, "@"); at >= 0 && at+1 < len(email) {
			domain := email[at+1:]
			if dot := strings.Index(domain, "."); dot > 0 {
				indicators = append(indicators, domain[:dot])
			}
		}
	}

	scan := strings.ToLower(transcript)
	if len(scan) > transcriptScanLimit {
		scan = scan[:transcriptScanLimit]
	}
	for _, pattern := range transcriptPatterns {
		for _, match := range pattern.FindAllStringSubmatch(scan, -1) {
			if len(match) > 1 {
				if phrase := strings.TrimSpace(match[1]); phrase != "" {
					indicators = append(indicators, phrase)
				}
			}
		}
	}

	return indicators
}

// scoreCandidate sums the independent signals for one project. Candidates are
// scored in isolation — no cross-candidate normalization — and the total is
// clamped to 1.0.
func scoreCandidate(project *models.Project, indicators []string) (float64, []string) {
	var score float64
	var matchedOn []string

	name := strings.ToLower(project.Name)
	if name != "" && anyOverlap(indicators, name) {
		score += nameWeight
		matchedOn = append(matchedOn, "name")
	}

	if project.JobNumber != nil {
		jobNumber := strings.ToLower(strings.TrimSpace(*project.JobNumber))
		if jobNumber != "" {
			for _, indicator := range indicators {
				if indicator == jobNumber || strings.Contains(indicator, jobNumber) {
					score += jobNumberWeight
					matchedOn = append(matchedOn, "job_number")
					break
				}
			}
		}
	}

	if project.Address != nil {
		for _, token := range strings.Fields(strings.ToLower(*project.Address)) {
			token = strings.Trim(token, ",.")
			if len(token) <= 3 {
				continue
			}
			for _, indicator := range indicators {
				if strings.Contains(indicator, token) {
					// Each matching token accumulates; a full street address
					// in the title can outweigh a lone name hit
					score += addressTokenWeight
					matchedOn = append(matchedOn, "address")
					break
				}
			}
		}
	}

	if project.ClientName != nil {
		client := strings.ToLower(strings.TrimSpace(*project.ClientName))
		if client != "" && anyOverlap(indicators, client) {
			score += clientWeight
			matchedOn = append(matchedOn, "client")
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, matchedOn
}

// anyOverlap reports whether any indicator is a substring of the target or
// contains it.
func anyOverlap(indicators []string, target string) bool {
	for _, indicator := range indicators {
		if strings.Contains(indicator, target) || strings.Contains(target, indicator) {
			return true
		}
	}
	return false
}
