package backend

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/glossa-app/glossa/pkg/aierr"
	"github.com/glossa-app/glossa/pkg/models"
)

// SystemPrompt frames every request sent to a chat-style model.
const SystemPrompt = "You are a reading assistant for language learners. " +
	"Answer with the requested output only, without preamble or commentary."

// LanguagePrompt asks for the ISO 639-1 code of text.
func LanguagePrompt(text string) string {
	return "Identify the language of the following text. " +
		"Reply with its ISO 639-1 code only, for example en or fr.\n\n" + text
}

// SummaryPrompt asks for a summary shaped by opts.
func SummaryPrompt(text string, opts models.SummaryOptions) string {
	var b strings.Builder
	b.WriteString("Summarize the following text")
	if opts.MaxLength > 0 {
		fmt.Fprintf(&b, " in at most %d words", opts.MaxLength)
	}
	if opts.Format == models.SummaryBullets {
		b.WriteString(" as a bulleted list, one point per line starting with \"- \"")
	} else {
		b.WriteString(" as a single paragraph")
	}
	b.WriteString(". Keep the language of the original.\n\n")
	b.WriteString(text)
	return b.String()
}

// RewritePrompt asks for text rewritten at a reading difficulty from 1
// (beginner) to 10 (native).
func RewritePrompt(text string, difficulty int) string {
	return fmt.Sprintf("Rewrite the following text for a reader at difficulty level %d on a scale "+
		"from 1 (absolute beginner) to 10 (native speaker). Keep the meaning and the language "+
		"of the original. Reply with the rewritten text only.\n\n%s", difficulty, text)
}

// TranslatePrompt asks for a translation between two language codes.
func TranslatePrompt(text, from, to string) string {
	return fmt.Sprintf("Translate the following text from %s to %s. "+
		"Reply with the translation only.\n\n%s", from, to, text)
}

// VocabularyPrompt asks for a JSON vocabulary analysis of words as used in
// passage.
func VocabularyPrompt(words []string, passage string) string {
	return fmt.Sprintf("For each word in %s, as used in the passage below, return a JSON array of "+
		"objects with the fields word (string), difficulty (integer 1-10), is_proper_noun (bool), "+
		"is_technical_term (bool), example_sentences (array of strings) and definition (string). "+
		"Reply with the JSON array only.\n\nPassage:\n%s", quoteList(words), passage)
}

func quoteList(words []string) string {
	raw, _ := json.Marshal(words)
	return string(raw)
}

var languageCode = regexp.MustCompile(`^[a-z]{2,3}(-[a-z0-9]{2,8})?$`)

// ParseLanguageCode extracts a language code from a model reply such as
// "en", "EN." or "`fr`".
func ParseLanguageCode(reply string) (string, error) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return "", aierr.ProcessingFailed("empty language detection reply", nil)
	}
	code := strings.ToLower(strings.Trim(fields[0], "`'\".,;:!()[]{}"))
	code = strings.ReplaceAll(code, "_", "-")
	if !languageCode.MatchString(code) {
		return "", aierr.ProcessingFailed(fmt.Sprintf("unrecognized language code %q", fields[0]), nil)
	}
	return code, nil
}

// ParseVocabulary decodes a JSON vocabulary reply, tolerating code fences and
// surrounding prose. Difficulties are clamped into range.
func ParseVocabulary(reply string) ([]models.VocabularyAnalysis, error) {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start < 0 || end < start {
		return nil, aierr.ProcessingFailed("vocabulary reply contains no JSON array", nil)
	}

	var items []models.VocabularyAnalysis
	if err := json.Unmarshal([]byte(reply[start:end+1]), &items); err != nil {
		return nil, aierr.ProcessingFailed("decode vocabulary reply", err)
	}
	out := items[:0]
	for _, it := range items {
		it.Word = strings.TrimSpace(it.Word)
		if it.Word == "" {
			continue
		}
		it.Difficulty = min(max(it.Difficulty, models.MinDifficulty), models.MaxDifficulty)
		out = append(out, it)
	}
	return out, nil
}

// CleanReply trims whitespace and a surrounding code fence from a model reply.
func CleanReply(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") && len(s) >= 6 {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " \t") {
			s = s[nl+1:]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
