package domain

import (
	"fmt"
	"slices"
)

type Category string

const (
	CategoryFactualClaim Category = "factual-claim"
	CategoryNarrative    Category = "narrative"
	CategorySystemClaim  Category = "system-level-claim"
	CategoryQuestion     Category = "question"
	CategoryMixed        Category = "mixed"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFactualClaim, CategoryNarrative, CategorySystemClaim, CategoryQuestion, CategoryMixed:
		return true
	}
	return false
}

type StyleFlag string

const (
	StyleEmotional StyleFlag = "emotional"
	StyleShouting  StyleFlag = "shouting"
	StyleQuoted    StyleFlag = "quoted"
)

type Topic string

const (
	TopicGeopolitical    Topic = "geopolitical"
	TopicInformation     Topic = "information"
	TopicPowerGovernance Topic = "power-governance"
	TopicEconomy         Topic = "economy"
	TopicCultural        Topic = "cultural"
)

// Topics is the fixed topic vocabulary in its canonical order.
var Topics = []Topic{
	TopicGeopolitical,
	TopicInformation,
	TopicPowerGovernance,
	TopicEconomy,
	TopicCultural,
}

// ClassifiedInput is the structured record derived once per request from the
// user's raw text. Build it with NewClassifiedInput; the zero value is invalid.
type ClassifiedInput struct {
	RawText         string
	CleanedText     string
	Category        Category
	StyleFlags      []StyleFlag
	EmotionalCharge int
	Complexity      int
	TopicHints      []Topic
}

func NewClassifiedInput(raw, cleaned string, category Category, flags []StyleFlag, charge, complexity int, topics []Topic) (ClassifiedInput, error) {
	if cleaned == "" {
		return ClassifiedInput{}, fmt.Errorf("classified input: cleaned text is empty")
	}
	if !category.Valid() {
		return ClassifiedInput{}, fmt.Errorf("classified input: unknown category %q", category)
	}
	if charge < 1 || charge > 5 {
		return ClassifiedInput{}, fmt.Errorf("classified input: emotional charge %d out of range 1-5", charge)
	}
	if complexity < 1 || complexity > 5 {
		return ClassifiedInput{}, fmt.Errorf("classified input: complexity %d out of range 1-5", complexity)
	}
	return ClassifiedInput{
		RawText:         raw,
		CleanedText:     cleaned,
		Category:        category,
		StyleFlags:      slices.Clone(flags),
		EmotionalCharge: charge,
		Complexity:      complexity,
		TopicHints:      slices.Clone(topics),
	}, nil
}

func (in ClassifiedInput) HasTopic(t Topic) bool {
	return slices.Contains(in.TopicHints, t)
}

func (in ClassifiedInput) HasFlag(f StyleFlag) bool {
	return slices.Contains(in.StyleFlags, f)
}

// Simple reports whether the input is plain enough for quick mode to trim the
// module pool.
func (in ClassifiedInput) Simple() bool {
	return in.Complexity <= 2 &&
		in.EmotionalCharge <= 2 &&
		len(in.TopicHints) == 0 &&
		in.Category == CategoryFactualClaim
}
