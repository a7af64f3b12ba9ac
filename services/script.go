package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/srgchrksv/docpodcaster/apperrors"
	"github.com/srgchrksv/docpodcaster/models"
)

// ContentGenerator is the part of *genai.GenerativeModel the script generator uses.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

const scriptPrompt = `You are two expert analysts, 'Alex' (Host, Male) and 'Sarah' (Expert, Female), reviewing a document for a Knowledge Base.
Task: Discuss the content of the provided text. Summarize the key points, explain complex terms, and mention specific details found in the text.
Constraints:
- Do NOT act like recruiters.
- Do NOT have generic small talk (e.g., 'How was your weekend?').
- Start immediately with the document's topic.
- If the text is technical, explain it simply.
- Reference specific headers or data points from the text.

RULES: Output strictly valid JSON array. Do not use markdown blocks. Do not add introductory text.
Keep the conversation concise. Max 500 words total.
The JSON structure must be:
[{ "speaker": "Host", "text": "..." }, { "speaker": "Guest", "text": "..." }]
speaker must be exactly "Host" or "Guest".
Speaker mapping: Alex = Host, Sarah = Guest.

TEXT:
`

// NewScriptModel configures a Gemini model to answer with a JSON array of script lines.
func NewScriptModel(client *genai.Client, name string) *genai.GenerativeModel {
	model := client.GenerativeModel(name)
	model.SetTemperature(0.3)
	model.SetMaxOutputTokens(8192)
	model.ResponseMIMEType = "application/json"
	// schema for structured response
	model.ResponseSchema = &genai.Schema{
		Type:        genai.TypeArray,
		Description: "The podcast conversation in speaking order",
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"speaker": {
					Type:        genai.TypeString,
					Description: "Host (Alex) or Guest (Sarah)",
					Enum:        []string{string(models.Host), string(models.Guest)},
				},
				"text": {
					Type:        genai.TypeString,
					Description: "Text spoken by the speaker",
				},
			},
			Required: []string{"speaker", "text"},
		},
	}
	return model
}

// ScriptGenerator turns source text into a two-speaker script.
type ScriptGenerator struct {
	model         ContentGenerator
	maxInputChars int
	timeout       time.Duration
	log           *slog.Logger
}

func NewScriptGenerator(model ContentGenerator, maxInputChars int, timeout time.Duration, log *slog.Logger) *ScriptGenerator {
	if log == nil {
		log = slog.Default()
	}
	return &ScriptGenerator{
		model:         model,
		maxInputChars: maxInputChars,
		timeout:       timeout,
		log:           log,
	}
}

// Generate makes a single model call and parses its answer. Remote failures,
// including the call timing out, are returned as upstream errors without retrying.
func (g *ScriptGenerator) Generate(ctx context.Context, sourceText string) ([]models.ScriptLine, error) {
	if g.model == nil {
		return nil, apperrors.Configuration("script model is not configured")
	}
	text := truncateRunes(strings.TrimSpace(sourceText), g.maxInputChars)
	if text == "" {
		return nil, apperrors.Argument("source text is empty")
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.model.GenerateContent(callCtx, genai.Text(scriptPrompt+text))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if apiErr, ok := apierror.FromError(err); ok && apiErr.HTTPCode() > 0 {
			return nil, apperrors.Upstream(err, "script request failed with status %d", apiErr.HTTPCode())
		}
		return nil, apperrors.Upstream(err, "script request failed")
	}

	raw := responseText(resp)
	g.log.Debug("script response received", "chars", len(raw), "elapsed", time.Since(start))

	lines, err := g.parse(raw)
	if err != nil {
		g.log.Error("could not parse script response", "error", err, "response", raw)
		return nil, err
	}
	return lines, nil
}

func (g *ScriptGenerator) parse(raw string) ([]models.ScriptLine, error) {
	span, ok := isolateArray(cleanResponse(raw))
	if !ok {
		return nil, apperrors.ScriptParse(nil, "response contains no JSON array")
	}

	lines, err := decodeLines(span)
	if err == nil {
		return lines, nil
	}

	if repaired, ok := RepairJSONArray(span); ok {
		if lines, rerr := decodeLines(repaired); rerr == nil {
			g.log.Warn("repaired truncated script response", "kept", len(lines), "error", err)
			return lines, nil
		}
	}
	return nil, apperrors.ScriptParse(err, "decode script")
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

var fenceRe = regexp.MustCompile("(?i)```[a-z]*")

// cleanResponse strips markdown code fences and stray backticks.
func cleanResponse(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "`", "")
	return strings.TrimSpace(s)
}

// isolateArray returns the JSON array span of s. When the closing bracket is
// missing the span runs to the end of s so a truncated answer can still be repaired.
func isolateArray(s string) (string, bool) {
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		return s, true
	}
	first := strings.IndexByte(s, '[')
	if first < 0 {
		return "", false
	}
	if last := strings.LastIndexByte(s, ']'); last > first {
		return s[first : last+1], true
	}
	return s[first:], true
}

// RepairJSONArray closes a JSON array that was cut off mid-stream. It keeps
// everything up to the last '}' outside a string literal and appends ']'.
// A string that is already valid JSON is returned unchanged.
func RepairJSONArray(s string) (string, bool) {
	if json.Valid([]byte(s)) {
		return s, true
	}
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "[") {
		return "", false
	}

	var (
		inString  bool
		escaped   bool
		lastClose = -1
	)
	for i := 0; i < len(t); i++ {
		c := t[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '}':
			lastClose = i
		}
	}
	if lastClose < 0 {
		return "", false
	}

	// Cutting right after the brace also drops any dangling comma.
	return t[:lastClose+1] + "]", true
}

// decodeLines parses a JSON array of {speaker, text}, dropping blank lines.
func decodeLines(span string) ([]models.ScriptLine, error) {
	var raw []struct {
		Speaker string `json:"speaker"`
		Text    string `json:"text"`
	}
	if err := json.Unmarshal([]byte(span), &raw); err != nil {
		return nil, fmt.Errorf("unmarshal script: %w", err)
	}

	lines := make([]models.ScriptLine, 0, len(raw))
	for _, r := range raw {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		lines = append(lines, models.ScriptLine{Speaker: models.ParseSpeaker(r.Speaker), Text: text})
	}
	return lines, nil
}

// truncateRunes limits s to n characters.
func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
