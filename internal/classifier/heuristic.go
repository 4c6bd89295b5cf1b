package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jyothsna-ssv/CrowdShield/internal/models"
	"github.com/jyothsna-ssv/CrowdShield/pkg/logging"
)

// Heuristic is a deterministic lexicon-based scorer used when no provider key
// is configured and as the fallback when the provider is unreachable. It is
// intentionally conservative: positive phrasing short-circuits to low scores,
// and negated matches ("not an idiot") do not count.
type Heuristic struct {
	logger logging.Logger
}

func NewHeuristic(logger logging.Logger) *Heuristic {
	return &Heuristic{logger: logger}
}

var negationWords = []string{
	"not", "never", "don't", "doesn't", "didn't", "won't", "wouldn't",
	"isn't", "aren't", "wasn't", "weren't", "can't", "couldn't",
	"shouldn't", "mustn't", "haven't", "hasn't", "hadn't",
}

var positivePhrases = []string{
	"well done", "keep going", "keep it up", "good job", "nice work",
	"thank you", "thanks", "explained well", "really well",
	"looks great", "looks good", "doing great", "doing well",
	"great work", "excellent work", "nice job", "well explained",
}

var positiveWords = []string{
	"great", "excellent", "wonderful", "amazing", "fantastic",
	"appreciate", "helpful", "useful",
}

var toxicWords = []string{
	"garbage", "trash", "worthless", "useless", "pathetic", "disgusting",
	"idiot", "stupid", "moron", "fool", "dumb",
	"hate", "despise", "loathe", "awful", "terrible",
	"annoying", "irritating", "shut up",
}

var hateWords = []string{
	"hate", "despise", "loathe", "disgusting",
	"idiot", "stupid", "moron", "fool", "dumb",
	"nobody wants", "nobody likes", "everyone hates", "no one wants",
}

var violenceWords = []string{
	"kill", "violence", "attack", "hurt", "harm",
	"punch", "strike", "assault", "murder",
}

var violencePhrases = []string{
	"kill you", "kill them", "kill him", "kill her",
	"hurt you", "hurt them", "attack you", "attack them",
	"punch you", "hit you", "hit them", "destroy you",
}

var sexualWords = []string{
	"sex", "explicit", "porn", "nude", "naked", "sexual",
}

var demeaningPhrases = []string{
	"don't know how you were even hired",
	"how you were even hired",
	"never should have been",
	"don't deserve",
	"shouldn't be here",
	"most annoying",
	"so annoying",
}

var insultWords = []string{
	"idiot", "stupid", "garbage", "worthless", "annoying",
}

// Classify scores the payload against the lexicons. Image payloads are URLs;
// they are scored over the URL text, which catches explicit slugs and little
// else, matching what a scorer without vision can honestly do.
func (h *Heuristic) Classify(ctx context.Context, kind models.ContentType, payload string) (models.Scores, error) {
	if payload == "" {
		return models.Scores{}, ErrEmptyPayload
	}

	text := strings.ToLower(payload)
	// Strip punctuation so phrase matching survives "Well done!".
	matchable := strings.Map(func(r rune) rune {
		switch r {
		case '!', '.', ',', ';', ':', '?':
			return ' '
		}
		return r
	}, text)

	if h.isPositive(matchable, text) {
		scores := models.Scores{
			Toxicity: 0.05,
			Hate:     0.02,
			Sexual:   0.01,
			Violence: 0.01,
			Raw:      json.RawMessage(`{"provider":"heuristic","positive":true}`),
		}
		h.logger.WithField("kind", kind).Info("Heuristic scorer: positive content")
		return scores, nil
	}

	toxicity, hate, sexual, violence := 0.1, 0.05, 0.02, 0.01

	if n := countMatches(text, toxicWords); n > 0 {
		toxicity = max(toxicity, 0.75+float64(n)*0.1)
	}
	if n := countMatches(text, hateWords); n > 0 {
		hate = max(hate, 0.65+float64(n)*0.1)
		toxicity = max(toxicity, hate+0.1)
	}
	if n := countMatches(text, violencePhrases); n > 0 {
		violence = max(violence, 0.8+float64(n)*0.1)
		toxicity = max(toxicity, violence*0.95)
	} else if n := countMatches(text, violenceWords); n > 0 {
		violence = max(violence, 0.7+float64(n)*0.15)
		toxicity = max(toxicity, violence*0.95)
	}
	if n := countMatches(text, sexualWords); n > 0 {
		sexual = max(sexual, 0.7+float64(n)*0.15)
	}

	for _, phrase := range demeaningPhrases {
		if strings.Contains(text, phrase) {
			toxicity = max(toxicity, 0.8)
			break
		}
	}
	if containsAny(text, "nobody wants", "nobody likes", "everyone hates", "no one wants") {
		hate = max(hate, 0.75)
		toxicity = max(toxicity, 0.85)
	}
	if h.isPersonalAttack(text) {
		toxicity = max(toxicity, 0.9)
		hate = max(hate, 0.8)
	}

	scores := models.Scores{
		Toxicity: min(toxicity, 1.0),
		Hate:     min(hate, 1.0),
		Sexual:   min(sexual, 1.0),
		Violence: min(violence, 1.0),
		Raw:      json.RawMessage(`{"provider":"heuristic"}`),
	}

	h.logger.WithFields(logging.Fields{
		"kind":     kind,
		"toxicity": scores.Toxicity,
		"hate":     scores.Hate,
		"sexual":   scores.Sexual,
		"violence": scores.Violence,
	}).Info("Heuristic moderation scores")

	return scores, nil
}

func (h *Heuristic) isPositive(matchable, text string) bool {
	for _, phrase := range positivePhrases {
		if strings.Contains(matchable, phrase) {
			return true
		}
	}
	if countMatches(text, toxicWords) > 0 {
		return false
	}
	padded := " " + matchable + " "
	for _, word := range positiveWords {
		if strings.Contains(padded, " "+word+" ") {
			return true
		}
	}
	return false
}

// isPersonalAttack flags second-person insults that are not negated.
func (h *Heuristic) isPersonalAttack(text string) bool {
	if !strings.Contains(text, "you are") && !strings.Contains(text, "you're") {
		return false
	}
	if containsAny(text, "you are not", "you're not", "you are never", "you're never") {
		return false
	}
	for _, word := range insultWords {
		if strings.Contains(text, word) && !isNegated(text, word) {
			return true
		}
	}
	return false
}

// countMatches counts terms present and not negated within the preceding 30
// characters.
func countMatches(text string, terms []string) int {
	n := 0
	for _, term := range terms {
		if strings.Contains(text, term) && !isNegated(text, term) {
			n++
		}
	}
	return n
}

// isNegated reports whether a negation word appears shortly before the first
// occurrence of term.
func isNegated(text, term string) bool {
	idx := strings.Index(text, term)
	if idx < 0 {
		return false
	}
	start := idx - 30
	if start < 0 {
		start = 0
	}
	before := text[start:idx]
	for _, neg := range negationWords {
		if strings.Contains(before, neg) {
			return true
		}
	}
	return false
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}
