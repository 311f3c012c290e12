// Package synth builds specification and design text locally, without any network access.
// Every function here is pure: identical input always yields byte-identical output.
package synth

import (
	"regexp"
	"strings"
)

const (
	UntitledStory = "Untitled story"

	GenericGiven = "the initial context for the user story"
	GenericWhen  = "the user performs the required action"
	GenericThen  = "the expected outcome is achieved"
)

// identifierPrefix matches titles such as "HU01 - Login flow", "US-12 - Checkout" or "HU - Login flow".
// Without digits the token must be upper case, so "Sign-up - new users" is left alone.
var identifierPrefix = regexp.MustCompile(`^(?:[A-Za-z]{1,5}-?\d+|[A-Z]{1,5})\s*-\s*(.+)$`)

const fallbackDesignAnalysis = "The design shows a user interface with a primary navigation area, " +
	"a main content area that presents the information the user works with, and interactive " +
	"components such as buttons, inputs and links that let the user act on that content. " +
	"The user should be able to move between sections through the navigation, review the " +
	"content displayed, and complete the main action offered by the screen. " +
	"Further detail is required to describe the exact fields, validation rules and expected " +
	"behaviour of each component; refine this description with the product team."

// FeatureName is the trimmed title, or UntitledStory when the title is blank.
func FeatureName(title string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return UntitledStory
	}
	return t
}

// ScenarioName strips an identifier-like prefix from the title when present.
func ScenarioName(title string) string {
	t := FeatureName(title)
	if m := identifierPrefix.FindStringSubmatch(t); m != nil {
		if rest := strings.TrimSpace(m[1]); rest != "" {
			return rest
		}
	}
	return t
}

// Sentences splits text after every period, keeping order. The terminating period is dropped,
// whitespace runs collapse to one space, and empty fragments are discarded.
func Sentences(text string) []string {
	var out []string
	for _, part := range strings.SplitAfter(text, ".") {
		s := strings.Join(strings.Fields(part), " ")
		s = strings.TrimSpace(strings.TrimSuffix(s, "."))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SynthesizeSpecification renders a Given/When/Then feature from a story title and description.
func SynthesizeSpecification(title, description string) string {
	var b strings.Builder
	b.WriteString("Feature: ")
	b.WriteString(FeatureName(title))
	b.WriteString("\n\n  Scenario: ")
	b.WriteString(ScenarioName(title))
	b.WriteString("\n")

	step := func(keyword, text string) {
		b.WriteString("    ")
		b.WriteString(keyword)
		b.WriteString(" ")
		b.WriteString(text)
		b.WriteString("\n")
	}

	sentences := Sentences(description)
	switch len(sentences) {
	case 0:
		step("Given", GenericGiven)
		step("When", GenericWhen)
		step("Then", GenericThen)
	case 1:
		step("Given", sentences[0])
		step("When", GenericWhen)
		step("Then", GenericThen)
	case 2:
		step("Given", sentences[0])
		step("When", GenericWhen)
		step("Then", sentences[1])
	default:
		step("Given", sentences[0])
		step("When", sentences[1])
		step("Then", sentences[2])
		for _, s := range sentences[3:] {
			step("And", s)
		}
	}
	return b.String()
}

// FallbackDesignAnalysis is the fixed paragraph used when a design cannot be analyzed remotely.
func FallbackDesignAnalysis() string {
	return fallbackDesignAnalysis
}
