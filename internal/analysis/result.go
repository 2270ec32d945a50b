package analysis

import (
	"encoding/json"
	"strings"

	"github.com/cosmescan/backend/internal/models"
)

var fenceReplacer = strings.NewReplacer("```json", "", "```", "", "`", "")

// Sanitize removes every occurrence of code-fence markers and stray
// backticks from a model response and trims surrounding whitespace. The
// model is instructed not to emit them but does anyway.
func Sanitize(text string) string {
	return strings.TrimSpace(fenceReplacer.Replace(text))
}

// Outcome is the parse result of a model response. Raw always carries the
// sanitized text; Result is nil when that text was not a JSON object.
type Outcome struct {
	Result *models.AnalysisResult
	Raw    string
}

// Parsed reports whether the response decoded into a structured result.
func (o Outcome) Parsed() bool {
	return o.Result != nil
}

// ParseResult sanitizes a model response and attempts a strict parse into an
// AnalysisResult. There is no partial repair beyond fence stripping: when the
// remaining text is not a JSON object the raw text is kept as the outcome,
// never discarded and never surfaced as an error.
func ParseResult(text string) Outcome {
	clean := Sanitize(text)

	// Probe the top level first so that bare values ("null", strings,
	// arrays) fall through to the raw outcome instead of decoding into a
	// zero struct.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(clean), &probe); err != nil || probe == nil {
		return Outcome{Raw: clean}
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return Outcome{Raw: clean}
	}
	return Outcome{Result: &result, Raw: clean}
}
