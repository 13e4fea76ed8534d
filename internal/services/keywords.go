package services

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/mondo989/MemeSync/internal/models"
)

// sentinelKeyword is used when neither the model nor the heuristic can
// produce anything better, and as the last-resort search query when a
// keyword matches no assets. Keyword work never fails a job; it degrades.
const sentinelKeyword = "meme"

type KeywordService struct {
	apiKey string
	model  string

	mu     sync.Mutex
	client *genai.Client
}

func NewKeywordService(apiKey, model string) *KeywordService {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &KeywordService{
		apiKey: apiKey,
		model:  model,
	}
}

// ExtractKeyword assigns one search keyword to a lyric segment. Any model
// failure (missing key, request error, malformed response) falls back to a
// heuristic so the returned keyword is always non-empty.
func (s *KeywordService) ExtractKeyword(ctx context.Context, segment models.LyricSegment) models.KeywordAssignment {
	keyword := sanitizeKeyword(s.modelKeyword(ctx, segment.Text))
	if keyword == "" {
		keyword = heuristicKeyword(segment.Text)
	}
	return models.KeywordAssignment{Segment: segment, Keyword: keyword}
}

// modelKeyword asks the LLM for the segment's keyword. Returns "" when the
// response cannot be used, which routes the segment through the heuristic.
func (s *KeywordService) modelKeyword(ctx context.Context, text string) string {
	if s.apiKey == "" || strings.TrimSpace(text) == "" {
		return ""
	}

	client, err := s.geminiClient(ctx)
	if err != nil {
		log.Printf("[Keywords] Could not create genai client, using heuristic: %v", err)
		return ""
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, genai.Text(buildKeywordPrompt(text)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		log.Printf("[Keywords] Model request failed, using heuristic: %v", err)
		return ""
	}

	raw := resp.Text()
	var parsed struct {
		Keyword string `json:"keyword"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		log.Printf("[Keywords] Could not parse model response %q, using heuristic: %v", truncateString(raw, 200), err)
		return ""
	}
	return parsed.Keyword
}

// geminiClient creates the genai client on first use so a missing or bad key
// surfaces as a per-segment fallback, never a startup failure.
func (s *KeywordService) geminiClient(ctx context.Context) (*genai.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	s.client = client
	return client, nil
}

func buildKeywordPrompt(text string) string {
	var b strings.Builder
	b.WriteString(`You pick image-search keywords for a meme slideshow synced to song lyrics.

For the lyric line below, output ONE short keyword or two-word phrase that
would find a funny, relevant meme image for that line. Prefer concrete nouns
and internet-culture terms over abstract words. Never output an empty string.

Respond with JSON only, shaped exactly like:
{"keyword": "your keyword"}

Lyric line:
`)
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

// sanitizeKeyword normalizes a model-supplied keyword for use as a search
// query.
func sanitizeKeyword(keyword string) string {
	keyword = strings.TrimSpace(keyword)
	keyword = strings.Trim(keyword, `"'`)
	keyword = strings.ToLower(keyword)

	words := strings.Fields(keyword)
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"i": true, "im": true, "you": true, "he": true, "she": true, "it": true,
	"we": true, "they": true, "me": true, "my": true, "your": true,
	"is": true, "are": true, "was": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "that": true, "this": true, "so": true, "not": true,
	"dont": true, "oh": true, "yeah": true, "la": true, "na": true,
}

// heuristicKeyword picks the longest non-stopword from the lyric text,
// falling back to the sentinel when the line has nothing usable.
func heuristicKeyword(text string) string {
	best := ""
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" || stopwords[word] {
			continue
		}
		if len(word) > len(best) {
			best = word
		}
	}
	if best == "" {
		return sentinelKeyword
	}
	return best
}
