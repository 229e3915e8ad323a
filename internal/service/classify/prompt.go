package classify

import (
	"fmt"
	"strings"

	"smartmail/internal/model"
)

const promptTemplate = `
You are a highly accurate email classification agent.

Your task is to classify an email into ONE of the following categories:
%s

Guidelines:
- Always choose the BEST possible category, even if the email is ambiguous.
- Use ALL available context (subject, snippet, body, sender, labels, etc.).
- Be consistent across similar emails.
- Confidence should reflect how strongly the text fits the chosen category (0.0 = guess, 1.0 = very certain).

Return ONLY a JSON object with the following fields:
- category: the chosen category (string, must be from the provided list)
- confidence: a number between 0 and 1
- reasoning: a short sentence explaining why you chose this category
- summary: a brief summary of the email content (1-2 sentences)
Here is an example output:
` + "```json" + `
{
  "category": "Work / Professional",
  "confidence": 0.92,
  "reasoning": "The email discusses project updates and deadlines, which are typical of professional work communications.",
  "summary": "The email provides updates on the current project status and upcoming deadlines."
}
` + "```" + `

Email Details:
- Subject: %s
- From: %s
- Snippet: %s
- Body: %s
`

// BuildPrompt renders the classification prompt for one record. The body is the
// plain part, falling back to HTML.
func BuildPrompt(rec model.EmailRecord) string {
	body := rec.BodyPlain
	if body == "" {
		body = rec.BodyHTML
	}
	return fmt.Sprintf(promptTemplate, categoryList(), rec.Subject, rec.From, rec.Snippet, body)
}

func categoryList() string {
	cats := model.Categories()
	quoted := make([]string, len(cats))
	for i, c := range cats {
		quoted[i] = "'" + string(c) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
