package agent

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:'[\p{L}\p{N}_]+)*`)

// Words returns the lowercased words of text
func Words(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F1E0 && r <= 0x1F1FF,
		r >= 0x1F300 && r <= 0x1F64F,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F900 && r <= 0x1F9FF,
		r >= 0x1FA70 && r <= 0x1FAFF:
		return true
	}
	return false
}

// Emojis returns the emoji runs of text; adjacent emojis form one run
func Emojis(text string) []string {
	var runs []string
	var current strings.Builder
	for _, r := range text {
		if isEmoji(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			runs = append(runs, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		runs = append(runs, current.String())
	}
	return runs
}

// counter counts keys and ranks them by count, ties in first-seen order
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string, n int) {
	if n <= 0 {
		return
	}
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

func (c *counter) total() int {
	sum := 0
	for _, n := range c.counts {
		sum += n
	}
	return sum
}

func (c *counter) top(n int) []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	sort.SliceStable(keys, func(i, j int) bool {
		return c.counts[keys[i]] > c.counts[keys[j]]
	})
	if n >= 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func (c *counter) asMap() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// truncate shortens s to max runes, ending with "..." when cut
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// cleanList trims entries, drops empty ones and keeps at most max
func cleanList(items []string, max int) []string {
	out := []string{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
		if len(out) == max {
			break
		}
	}
	return out
}
