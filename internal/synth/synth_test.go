package synth_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyline/internal/synth"
)

func steps(spec string) []string {
	var out []string
	for _, line := range strings.Split(spec, "\n") {
		if strings.HasPrefix(line, "    ") {
			out = append(out, strings.TrimPrefix(line, "    "))
		}
	}
	return out
}

func TestSynthesizeThreeSentences(t *testing.T) {
	got := synth.SynthesizeSpecification("HU01 - Login flow", "User opens the app. User enters credentials. User sees dashboard.")
	want := "Feature: HU01 - Login flow\n\n" +
		"  Scenario: Login flow\n" +
		"    Given User opens the app\n" +
		"    When User enters credentials\n" +
		"    Then User sees dashboard\n"
	assert.Equal(t, want, got)
}

func TestSynthesizeSingleSentence(t *testing.T) {
	got := synth.SynthesizeSpecification("Checkout", "User has items in cart.")
	assert.Equal(t, []string{
		"Given User has items in cart",
		"When the user performs the required action",
		"Then the expected outcome is achieved",
	}, steps(got))
	assert.Contains(t, got, "  Scenario: Checkout\n")
}

func TestSynthesizeTwoSentences(t *testing.T) {
	got := synth.SynthesizeSpecification("Search", "Catalog is loaded. Results are filtered.")
	assert.Equal(t, []string{
		"Given Catalog is loaded",
		"When " + synth.GenericWhen,
		"Then Results are filtered",
	}, steps(got))
}

func TestSynthesizeNoSentences(t *testing.T) {
	for _, desc := range []string{"", "   ", "...", " . . "} {
		got := synth.SynthesizeSpecification("Empty", desc)
		assert.Equal(t, []string{
			"Given " + synth.GenericGiven,
			"When " + synth.GenericWhen,
			"Then " + synth.GenericThen,
		}, steps(got), "description %q", desc)
	}
}

func TestSynthesizeAndLinesPreserveOrder(t *testing.T) {
	for n := 3; n <= 8; n++ {
		var parts []string
		for i := 1; i <= n; i++ {
			parts = append(parts, fmt.Sprintf("Sentence %d.", i))
		}
		got := steps(synth.SynthesizeSpecification("Story", strings.Join(parts, " ")))
		require.Len(t, got, n)
		assert.Equal(t, "Given Sentence 1", got[0])
		assert.Equal(t, "When Sentence 2", got[1])
		assert.Equal(t, "Then Sentence 3", got[2])
		for i, line := range got[3:] {
			assert.Equal(t, fmt.Sprintf("And Sentence %d", i+4), line)
		}
	}
}

func TestSynthesizeIsDeterministic(t *testing.T) {
	title, desc := "US-12 - Export", "A report exists. User clicks export. A file downloads. It is a CSV."
	assert.Equal(t, synth.SynthesizeSpecification(title, desc), synth.SynthesizeSpecification(title, desc))
}

func TestSynthesizeKeepsTrailingFragment(t *testing.T) {
	got := steps(synth.SynthesizeSpecification("Story", "First sentence. unterminated tail"))
	assert.Equal(t, "Given First sentence", got[0])
	assert.Equal(t, "Then unterminated tail", got[2])
}

func TestSynthesizeCollapsesWhitespace(t *testing.T) {
	got := steps(synth.SynthesizeSpecification("Story", "User is\n  signed in.\nUser opens settings."))
	assert.Equal(t, "Given User is signed in", got[0])
	assert.Equal(t, "Then User opens settings", got[2])
}

func TestScenarioName(t *testing.T) {
	cases := map[string]string{
		"HU01 - Login flow":   "Login flow",
		"US-12 - Checkout":    "Checkout",
		"hu7-Profile":         "Profile",
		"HU - Login flow":     "Login flow",
		"HU-Login flow":       "Login flow",
		"US-12 - Cart":        "Cart",
		"Login - Sign in":     "Login - Sign in",
		"  Plain title  ":     "Plain title",
		"Sign-up - new users": "Sign-up - new users",
		"":                    synth.UntitledStory,
	}
	for title, want := range cases {
		assert.Equal(t, want, synth.ScenarioName(title), "title %q", title)
	}
}

func TestFeatureNameDefaultsWhenBlank(t *testing.T) {
	got := synth.SynthesizeSpecification("   ", "Something happens.")
	assert.True(t, strings.HasPrefix(got, "Feature: Untitled story\n\n  Scenario: Untitled story\n"))
}

func TestFallbackDesignAnalysis(t *testing.T) {
	text := synth.FallbackDesignAnalysis()
	require.NotEmpty(t, text)
	assert.Equal(t, text, synth.FallbackDesignAnalysis())
	for _, word := range []string{"navigation", "content area", "interactive components", "Further detail is required"} {
		assert.Contains(t, text, word)
	}
}
