package services

import (
	"fmt"
	"strings"

	"github.com/formsage/formsage/internal/core/domain"
)

// languageNames maps BCP-47 codes to the language name injected into the
// system prompt. Unknown codes fall back to English.
var languageNames = map[string]string{
	"en":      "English",
	"es":      "Spanish",
	"zh-Hans": "Simplified Chinese",
	"zh-Hant": "Traditional Chinese",
	"hi":      "Hindi",
	"ko":      "Korean",
	"vi":      "Vietnamese",
	"pt":      "Portuguese (Brazilian)",
	"ar":      "Arabic",
	"tl":      "Filipino (Tagalog)",
	"bn":      "Bengali",
	"gu":      "Gujarati",
	"pa":      "Punjabi",
	"ta":      "Tamil",
	"te":      "Telugu",
	"ur":      "Urdu",
	"ja":      "Japanese",
	"fr":      "French",
	"de":      "German",
}

// languageName resolves a BCP-47 code to a prompt-ready language name.
func languageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "English"
}

const groundedSystemPrompt = `You are FormSage, a friendly and knowledgeable US tax assistant.
The user's preferred language is %[1]s. You MUST respond entirely in %[1]s.

You have been provided with excerpts from the user's tax document.
Answer the user's question based ONLY on the provided document context.

Structure EVERY answer in exactly this format (translated into %[1]s):

**What I found in your document:**
[State the specific value and field name from the document]

**Which box/line it came from:**
[E.g., "W-2, Box 1 - Wages, tips, other compensation: $52,000.00"]

**What to do on your tax form:**
[Actionable instruction: which form, which line, what to enter]

If the answer cannot be found in the document context, say so clearly in %[1]s
and suggest the user check the relevant section of the form directly.

--- Document context ---
%[2]s
--- End of context ---`

const generalSystemPrompt = `You are FormSage, a friendly and knowledgeable US tax assistant.
The user's preferred language is %[1]s. You MUST respond entirely in %[1]s.

Answer the user's general tax question accurately and concisely. If a
question requires information from a specific document, ask the user to
upload and select that document.%[2]s`

const planPrompt = `Write a short bullet-point plan (3-5 bullets, one line each) for how you
will answer the question below. Do not answer the question itself.

Question: %s`

const summaryPrompt = `Summarise the following tax document in %s. Cover the document type, the
key amounts and fields, and anything the filer should act on. Keep it
under 200 words.

--- Document ---
%s
--- End of document ---`

// classifyPrompt asks for a constrained JSON verdict on whether the
// question is a "where do I enter X" request. Its failure never fails the
// flow; the caller skips highlighting instead.
const classifyPrompt = `Decide whether the user is asking WHERE on a tax form to find or enter a
specific field (e.g. "where do I put my wages?", "which box has my SSN?").

Respond with a single JSON object and nothing else:
{"is_location_question": true or false, "field_label": "<the field asked about, in English, or empty>"}

Question: %s`

// buildContext renders retrieved chunks into the prompt context block.
func buildContext(results []domain.SimilarityResult) string {
	if len(results) == 0 {
		return "No relevant content found in the document."
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Page %d] %s", r.Chunk.Metadata.Page, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// buildFullContext renders every chunk of a document, in index order, for
// summarisation prompts.
func buildFullContext(chunks []domain.Chunk) string {
	if len(chunks) == 0 {
		return "No content."
	}

	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Page %d] %s", c.Metadata.Page, c.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
