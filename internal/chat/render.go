package chat

import "strings"

// Greeting is the assistant turn that opens a fresh conversation.
const Greeting = "Hello! I'm your AI wilderness survival guide. I can help you with camping tips, " +
	"wildlife safety, emergency procedures, and outdoor navigation. What would you like to know?"

// QuickPrompts are suggested questions for an empty conversation.
var QuickPrompts = []string{
	"How to build a fire?",
	"Finding safe water",
	"Emergency shelter",
	"Navigation basics",
}

// RenderPrompt flattens turns into the plain-text transcript fed to the
// engine when rebuilding its context.
func RenderPrompt(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if t.IsUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Content)
	}
	return b.String()
}
