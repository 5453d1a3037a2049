package memory

import (
	"strings"
	"time"
	"unicode"

	"github.com/hupe1980/messplanner/core"
)

// RecordsFromSession converts the textual, non-partial events of sess into
// memory records. Tool traffic and empty messages are skipped.
func RecordsFromSession(sess *core.Session) []core.MemoryRecord {
	if sess == nil {
		return nil
	}

	var records []core.MemoryRecord
	for _, ev := range sess.GetConversationHistory() {
		if ev.Content == nil || ev.Content.Role == "tool" || len(ev.GetFunctionCalls()) > 0 {
			continue
		}

		text := strings.TrimSpace(ev.Text())
		if text == "" {
			continue
		}

		created := ev.Timestamp
		if created.IsZero() {
			created = time.Now().UTC()
		}

		records = append(records, core.MemoryRecord{
			ID:        core.NewID(),
			AppName:   sess.Key.AppName,
			UserID:    sess.Key.UserID,
			SessionID: sess.Key.SessionID,
			EventID:   ev.ID,
			Author:    ev.Author,
			Content:   text,
			CreatedAt: created,
		})
	}

	return records
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "the": true, "of": true, "to": true,
	"in": true, "is": true, "for": true, "on": true, "with": true, "me": true,
	"do": true, "kar": true, "bhai": true, "hai": true, "ka": true, "ki": true,
}

// Tokenize lowercases s and splits it into searchable terms.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := map[string]bool{}
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		tokens = append(tokens, f)
	}

	return tokens
}

// Score returns the share of query terms found in content, in [0,1].
func Score(queryTokens []string, content string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	have := map[string]bool{}
	for _, t := range Tokenize(content) {
		have[t] = true
	}

	hits := 0
	for _, q := range queryTokens {
		if have[q] {
			hits++
		}
	}

	return float64(hits) / float64(len(queryTokens))
}
