package respond

import "fmt"

const promptTemplate = `
You are a Smart AI email responder.
Write a professional, polite, and concise reply to the email below.

From: %s
To: %s
Subject: %s

Email Body:
%s

Reply in 3-5 sentences and ensure clarity and relevance.
Your response should address the main points of the email and provide any necessary information or clarification.
Reply:
`

func BuildPrompt(sender, recipient, subject, body string) string {
	return fmt.Sprintf(promptTemplate, sender, recipient, subject, body)
}
