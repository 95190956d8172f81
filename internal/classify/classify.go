package classify

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"raicompanion/internal/domain"
)

var ErrInvalidInput = errors.New("input is empty")

// Thresholds. Changing any of these changes classification results, so they
// are part of the documented behaviour.
const (
	emotionalExclamations = 2
	heavyExclamations     = 3
	shoutingMinLetters    = 4
	longTextRunes         = 100
	veryLongTextRunes     = 300
	maxScore              = 5
)

var interrogativeOpeners = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"who": true, "whom": true, "whose": true, "which": true,
	"is": true, "are": true, "was": true, "were": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "should": true, "would": true, "will": true,
}

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\.?\s+\d{1,2}(st|nd|rd|th)?\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(st|nd|rd|th)?\s+(of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\b`),
		regexp.MustCompile(`(?i)\b(on|in|at|during|since|by)\s+(\d{4})\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
	}

	factualWords = NewLexicon(
		"reported", "reports", "confirmed", "announced", "according to", "stated",
		"published", "yesterday", "today", "last week", "this morning", "recently",
	)

	systemWords = NewLexicon(
		"power", "powers", "control", "controls", "controlled", "system", "systems", "systemic",
		"government", "governments", "elite", "elites", "deep state", "regime", "establishment",
		"institutions", "institutional", "hegemony", "empire", "oligarchs", "globalists",
		"ruling class", "bureaucrats", "bureaucracy",
	)

	narrativeConnectives = NewLexicon(
		"because", "therefore", "led to", "leads to", "caused", "causes", "resulted in",
		"as a result", "consequently", "due to", "which is why", "thus",
	)

	strongSentiment = NewLexicon(
		"hate", "hatred", "love", "disgust", "disgusting", "outrage", "outrageous",
		"fury", "furious", "evil", "horrible", "disgrace", "shameful", "betrayal", "traitors",
	)

	technicalTerms = NewLexicon(
		"geopolitical", "systemic", "institutional", "asymmetric", "hegemony", "sovereignty",
		"multipolar", "infrastructure", "macroeconomic", "deterrence", "epistemic", "algorithmic",
	)

	quotedPhrase = NewLexicon("so-called")

	topicLexicons = map[domain.Topic]Lexicon{
		domain.TopicGeopolitical: NewLexicon(
			"war", "wars", "military", "nato", "invasion", "sanctions", "alliance", "border",
			"troops", "nuclear", "geopolitical", "territory", "diplomacy", "bombing", "missile",
			"ceasefire", "occupation",
		),
		domain.TopicInformation: NewLexicon(
			"media", "news", "propaganda", "censorship", "censored", "journalist", "journalists",
			"press", "social media", "disinformation", "misinformation", "fake news", "platform",
			"platforms",
		),
		domain.TopicPowerGovernance: NewLexicon(
			"government", "election", "elections", "president", "parliament", "congress", "policy",
			"regime", "democracy", "authoritarian", "deep state", "bureaucrats", "bureaucracy",
			"corruption", "elite", "elites",
		),
		domain.TopicEconomy: NewLexicon(
			"economy", "economic", "market", "markets", "inflation", "debt", "bank", "banks",
			"trade", "tariff", "tariffs", "capital", "wealth", "wages", "oil", "prices",
			"investment", "budget",
		),
		domain.TopicCultural: NewLexicon(
			"culture", "cultural", "religion", "religious", "identity", "tradition", "traditions",
			"history", "historical", "ethnic", "heritage", "civilization", "language", "values",
		),
	}

	terminatorRun = regexp.MustCompile(`[.!?]+(\s|$)`)
)

// Classify turns raw user text into a ClassifiedInput. It is deterministic and
// only fails on empty or whitespace-only input.
func Classify(raw string) (domain.ClassifiedInput, error) {
	cleaned := Clean(raw)
	if cleaned == "" {
		return domain.ClassifiedInput{}, ErrInvalidInput
	}

	flags := styleFlags(raw)
	return domain.NewClassifiedInput(
		raw,
		cleaned,
		category(cleaned),
		flags,
		emotionalCharge(raw, flags),
		complexity(cleaned),
		topics(cleaned),
	)
}

// Clean collapses runs of three or more identical punctuation characters to
// two and all whitespace runs to one space, then trims.
func Clean(raw string) string {
	var b strings.Builder
	var prev rune
	run := 0
	for _, r := range raw {
		if r == prev && unicode.IsPunct(r) {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > 2 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func category(cleaned string) domain.Category {
	switch {
	case isQuestion(cleaned):
		return domain.CategoryQuestion
	case isFactual(cleaned):
		return domain.CategoryFactualClaim
	case systemWords.Matches(cleaned):
		return domain.CategorySystemClaim
	case narrativeConnectives.Matches(cleaned):
		return domain.CategoryNarrative
	}
	return domain.CategoryMixed
}

func isQuestion(cleaned string) bool {
	if strings.Contains(cleaned, "?") {
		return true
	}
	first := strings.Fields(cleaned)[0]
	first = strings.ToLower(strings.TrimFunc(first, func(r rune) bool { return !unicode.IsLetter(r) }))
	return interrogativeOpeners[first]
}

func isFactual(cleaned string) bool {
	for _, p := range datePatterns {
		if p.MatchString(cleaned) {
			return true
		}
	}
	return factualWords.Matches(cleaned)
}

func styleFlags(raw string) []domain.StyleFlag {
	var flags []domain.StyleFlag
	if strings.Count(raw, "!") >= emotionalExclamations {
		flags = append(flags, domain.StyleEmotional)
	}
	if hasShouting(raw) {
		flags = append(flags, domain.StyleShouting)
	}
	if strings.ContainsAny(raw, "\"“”«»") || quotedPhrase.Matches(raw) {
		flags = append(flags, domain.StyleQuoted)
	}
	return flags
}

func hasShouting(raw string) bool {
	for _, word := range strings.Fields(raw) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) })
		if utf8.RuneCountInString(word) < shoutingMinLetters {
			continue
		}
		allUpper := true
		for _, r := range word {
			if !unicode.IsLetter(r) || !unicode.IsUpper(r) {
				allUpper = false
				break
			}
		}
		if allUpper {
			return true
		}
	}
	return false
}

func emotionalCharge(raw string, flags []domain.StyleFlag) int {
	charge := 1
	bangs := strings.Count(raw, "!")
	if bangs >= 1 {
		charge++
	}
	if bangs >= heavyExclamations {
		charge++
	}
	if strongSentiment.Matches(raw) {
		charge++
	}
	for _, f := range flags {
		if f == domain.StyleShouting {
			charge++
			break
		}
	}
	return min(charge, maxScore)
}

func complexity(cleaned string) int {
	score := 1
	length := utf8.RuneCountInString(cleaned)
	if length > longTextRunes {
		score++
	}
	if length > veryLongTextRunes {
		score++
	}
	if len(terminatorRun.FindAllStringIndex(cleaned, -1)) > 1 {
		score++
	}
	if technicalTerms.Matches(cleaned) {
		score++
	}
	return min(score, maxScore)
}

func topics(cleaned string) []domain.Topic {
	var out []domain.Topic
	for _, topic := range domain.Topics {
		if topicLexicons[topic].Matches(cleaned) {
			out = append(out, topic)
		}
	}
	return out
}
