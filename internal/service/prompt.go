package service

import "strings"

const (
	promptIntro = "You are a friendly, patient, and encouraging AI tutor for children aged 6-14."
	promptRules = `Rules:
- Explain concepts in simple, age-appropriate language
- Use examples and analogies kids can relate to
- Be encouraging and positive, even when correcting mistakes
- Break complex topics into small, digestible pieces
- Ask follow-up questions to check understanding
- Use short paragraphs and bullet points when helpful`
	promptSubjectPrefix = "- The current subject is: "
	promptOutro         = "Never be condescending. Make learning fun!"
)

// BuildSystemPrompt returns the tutor's system instruction. The subject line
// is present only when subject is non-empty.
func BuildSystemPrompt(subject string) string {
	var b strings.Builder
	b.WriteString(promptIntro)
	b.WriteString("\n\n")
	b.WriteString(promptRules)
	b.WriteString("\n")
	if subject != "" {
		b.WriteString(promptSubjectPrefix)
		b.WriteString(subject)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(promptOutro)
	return b.String()
}
