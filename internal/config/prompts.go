package config

// Default prompt templates. SummaryPrompt and ExecutivePrompt follow the
// "instructions, heading, body" layout the on-process generator relies on.
const (
	DefaultSummaryPrompt = `You are an analyst reading customer feedback. Identify the recurring themes, group similar complaints and praise, and describe each theme in one or two sentences. Mention whether each theme is positive, neutral or negative.

Text:
{{.Documents}}`

	DefaultExecutivePrompt = `Write a short executive report for leadership based on the themes below. Lead with the most important issue, quantify where possible, and end with two recommended actions.

Themes:
{{.Summary}}`

	DefaultEvalRubric = `Grade the following summary of customer feedback. Reply with a single JSON object with integer scores from 1 to 5 for "coverage", "faithfulness" and "clarity", plus a short "comment" string.

Summary:
{{.Summary}}`

	DefaultRubricSchema = `{
  "type": "object",
  "required": ["coverage", "faithfulness", "clarity"],
  "properties": {
    "coverage": {"type": "integer", "minimum": 1, "maximum": 5},
    "faithfulness": {"type": "integer", "minimum": 1, "maximum": 5},
    "clarity": {"type": "integer", "minimum": 1, "maximum": 5},
    "comment": {"type": "string"}
  }
}`
)
