package command

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/emmett/voxtask/internal/tasks"
)

var (
	addPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(?:add|create|new|todo|remind me to|i need to) (.+)$`),
		regexp.MustCompile(`^(?:hey|okay|ok|please|can you) add (.+)$`),
	}

	// numbered forms first so "done with task 1" is not read as free text
	completePatterns = []targetPattern{
		{re: regexp.MustCompile(`^complete task (\S+)$`), numbered: true},
		{re: regexp.MustCompile(`^done with task (\S+)$`), numbered: true},
		{re: regexp.MustCompile(`^mark (.+) as (?:done|complete)$`)},
		{re: regexp.MustCompile(`^(?:complete|done|finish) (.+)$`)},
	}

	deletePatterns = []targetPattern{
		{re: regexp.MustCompile(`^delete task (\S+)$`), numbered: true},
		{re: regexp.MustCompile(`^remove task (\S+)$`), numbered: true},
		{re: regexp.MustCompile(`^(?:delete|remove|cancel) (.+)$`)},
	}

	clearPhrases = []string{"clear all", "delete all", "remove all"}

	highPriority   = regexp.MustCompile(`\b(?:urgent|high priority|important)\b`)
	mediumPriority = regexp.MustCompile(`\b(?:medium priority|normal)\b`)

	categoryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:in|for|under) (\w+) category\b`),
		regexp.MustCompile(`\bcategorize as (\w+)\b`),
		regexp.MustCompile(`\btag (\w+)\b`),
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// targetPattern captures a task reference. A numbered pattern only matches
// when the capture is a position.
type targetPattern struct {
	re       *regexp.Regexp
	numbered bool
}

var danglingWords = map[string]bool{"with": true, "as": true, "and": true}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20,
}

// Parse maps a transcript to a Command. Families are tried in a fixed
// order (add, complete, delete, clear) and the first match wins; anything
// else is Unknown. Parse never fails.
func Parse(transcript string) Command {
	raw := strings.TrimSpace(transcript)
	text := Normalize(transcript)

	for _, re := range addPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return parseAdd(raw, m[1])
		}
	}

	if ref, ok := matchTarget(completePatterns, text); ok {
		return withTarget(Command{Intent: IntentComplete, Raw: raw}, ref)
	}

	if ref, ok := matchTarget(deletePatterns, text); ok {
		return withTarget(Command{Intent: IntentDelete, Raw: raw}, ref)
	}

	for _, phrase := range clearPhrases {
		if strings.Contains(text, phrase) {
			return Command{Intent: IntentClear, Raw: raw}
		}
	}

	return Command{Intent: IntentUnknown, Raw: raw, Text: raw}
}

// Normalize lower-cases, trims, collapses whitespace and drops trailing
// punctuation.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimRight(s, ".,!?;: ")
}

func parseAdd(raw, body string) Command {
	cmd := Command{Intent: IntentAdd, Raw: raw}

	p := tasks.PriorityLow
	switch {
	case highPriority.MatchString(body):
		p = tasks.PriorityHigh
	case mediumPriority.MatchString(body):
		p = tasks.PriorityMedium
	}
	cmd.Priority = &p

	title := highPriority.ReplaceAllString(body, " ")
	title = mediumPriority.ReplaceAllString(title, " ")

	for _, re := range categoryPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			if cmd.Category == "" {
				cmd.Category = m[1]
			}
			title = re.ReplaceAllString(title, " ")
		}
	}

	cmd.Text = cleanTitle(title)
	if cmd.Text == "" {
		// nothing left but modifiers; keep what was said
		cmd.Text = strings.TrimSpace(body)
	}
	return cmd
}

func cleanTitle(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && danglingWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func matchTarget(patterns []targetPattern, text string) (string, bool) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if _, ok := parseIndex(m[1]); p.numbered && !ok {
			continue
		}
		return m[1], true
	}
	return "", false
}

// withTarget sets a position when ref is one ("2", "three", "task 4") and
// keeps ref verbatim as a text reference otherwise.
func withTarget(cmd Command, ref string) Command {
	ref = strings.TrimSpace(ref)
	n, ok := parseIndex(ref)
	if !ok {
		if rest, found := strings.CutPrefix(ref, "task "); found {
			n, ok = parseIndex(rest)
		}
	}
	if !ok {
		cmd.Target = ref
		return cmd
	}
	idx := n - 1
	cmd.Index = &idx
	return cmd
}

func parseIndex(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	return 0, false
}
