package memory

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rahul/cortex/internal/store"
)

// NoContextSentinel is returned whenever no digest can be produced, so
// callers can tell "nothing relevant" apart from "not yet computed".
const NoContextSentinel = "No relevant historical context found."

const (
	defaultMaxBullets = 10
	defaultMaxChars   = 1500

	// Recency decays with a one-week characteristic time.
	recencyDecayHours = 168

	// Near-duplicate threshold for the diversity bonus.
	duplicateSimilarity = 0.8
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
	"are": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "should": true, "could": true,
	"may": true, "might": true, "must": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true,
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// Scorer compresses an unbounded record history into a small ranked digest.
type Scorer struct {
	MaxBullets int
	MaxChars   int
}

func NewScorer() *Scorer {
	return &Scorer{
		MaxBullets: defaultMaxBullets,
		MaxChars:   defaultMaxChars,
	}
}

// ExtractQueryTerms tokenizes the input and drops stop words and tokens
// shorter than three characters.
func ExtractQueryTerms(input string) []string {
	raw := wordPattern.FindAllString(strings.ToLower(input), -1)
	var terms []string
	for _, t := range raw {
		if !stopWords[t] && len(t) > 2 {
			terms = append(terms, t)
		}
	}
	return terms
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range ExtractQueryTerms(text) {
		set[t] = true
	}
	return set
}

// Similarity is the Jaccard similarity of the stop-word-filtered token
// sets of the two texts.
func Similarity(a, b string) float64 {
	sa, sb := termSet(a), termSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	intersection := 0
	for t := range sa {
		if sb[t] {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Score computes the composite relevance score for one record.
//
// Weights: recency 0.30, semantic overlap 0.30, tool success 0.15,
// provenance 0.10, length penalty 0.10, diversity 0.05.
func (s *Scorer) Score(rec store.Record, query string, now time.Time, seen []string) float64 {
	score := 0.0
	text := strings.ToLower(rec.User + " " + rec.Assistant)

	// Recency: exponential decay over the record's age.
	if rec.Timestamp.IsZero() {
		score += 0.05
	} else {
		ageHours := now.Sub(rec.Timestamp).Hours()
		if ageHours < 0 {
			ageHours = 0
		}
		score += math.Exp(-ageHours/recencyDecayHours) * 0.30
	}

	// Semantic overlap with the query.
	score += Similarity(query, text) * 0.30

	// Tool success signal.
	if rec.Tool != "" && rec.Success {
		score += 0.15
	} else if rec.Tool != "" {
		score += 0.05
	}

	// Provenance completeness.
	if !rec.Timestamp.IsZero() {
		score += 0.03
	}
	if rec.Tool != "" {
		score += 0.04
	}
	if rec.Result != "" {
		score += 0.03
	}

	// Length penalty favors short records.
	switch n := len(text); {
	case n < 200:
		score += 0.10
	case n < 500:
		score += 0.07
	case n < 1000:
		score += 0.04
	default:
		score += 0.01
	}

	// Diversity bonus unless near-duplicate of an already seen record.
	diverse := true
	for _, prior := range seen {
		if Similarity(text, prior) > duplicateSimilarity {
			diverse = false
			break
		}
	}
	if diverse {
		score += 0.05
	}

	return score
}

type scored struct {
	score float64
	rec   store.Record
}

// Digest ranks the records against the query and compresses the best of
// them into bullet lines bounded by MaxBullets and MaxChars. It never
// returns an empty string: every no-content path yields the sentinel.
func (s *Scorer) Digest(records []store.Record, query string) string {
	if len(records) == 0 {
		return NoContextSentinel
	}
	if len(ExtractQueryTerms(query)) == 0 {
		return NoContextSentinel
	}

	now := time.Now()
	var seen []string
	items := make([]scored, 0, len(records))
	for _, rec := range records {
		items = append(items, scored{
			score: s.Score(rec, query, now, seen),
			rec:   rec,
		})
		seen = append(seen, strings.ToLower(rec.User+" "+rec.Assistant))
	}

	// Sort descending by score. Insertion sort keeps the ordering stable
	// for equal scores.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].score > items[j-1].score; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}

	summary := s.compress(items)
	if strings.TrimSpace(summary) == "" {
		return NoContextSentinel
	}
	return summary
}

func (s *Scorer) compress(items []scored) string {
	maxBullets := s.MaxBullets
	if maxBullets <= 0 {
		maxBullets = defaultMaxBullets
	}
	maxChars := s.MaxChars
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	var bullets []string
	total := 0

	for _, item := range items {
		if len(bullets) >= maxBullets {
			break
		}

		date := "Unknown"
		if !item.rec.Timestamp.IsZero() {
			date = item.rec.Timestamp.Format("2006-01-02")
		}

		intent := truncate(item.rec.User, 50)
		if intent == "" {
			intent = "No query"
		}
		resp := truncate(item.rec.Assistant, 80)
		if resp == "" {
			resp = "No response"
		}
		tool := item.rec.Tool
		if tool == "" {
			tool = "none"
		}

		bullet := fmt.Sprintf("- %s — %s — %s — [tool: %s] — score: %.2f", date, intent, resp, tool, item.score)
		if total+len(bullet)+1 > maxChars {
			break
		}

		bullets = append(bullets, bullet)
		total += len(bullet) + 1
	}

	return strings.Join(bullets, "\n")
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
