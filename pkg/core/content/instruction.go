package content

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemInstruction builds the persona prompt for the live conversation. The
// resume is embedded as indented JSON so the model answers only from it.
func SystemInstruction(r Resume) (string, error) {
	knowledge := r
	knowledge.Title = ""
	knowledge.Badge = nil
	knowledge.ResumeFile = ""

	data, err := json.MarshalIndent(knowledge, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode resume: %w", err)
	}

	first := firstName(r.Name)
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly, professional, and conversational AI assistant representing %s. ", r.Name)
	fmt.Fprintf(&b, "Your purpose is to answer questions about %s based on the resume below. Be engaging and informative. Do not go off-topic. ", first)
	fmt.Fprintf(&b, "If asked about something not on the resume, politely state that you only have information from %s's professional portfolio.\n\n", first)
	fmt.Fprintf(&b, "Here is %s's resume data in JSON format:\n", first)
	b.Write(data)
	b.WriteString("\n\nSome guidelines:\n")
	b.WriteString("- When asked about projects, briefly describe the project and highlight one or two key achievements or technologies used.\n")
	fmt.Fprintf(&b, "- When asked about skills, mention %s's key areas of expertise and the specific frameworks listed.\n", first)
	fmt.Fprintf(&b, "- When asked about experience, talk about %s's roles and what was accomplished in them.\n", first)
	b.WriteString("- Keep your answers concise but comprehensive.\n")
	b.WriteString("- Your voice should be friendly and enthusiastic.\n")
	fmt.Fprintf(&b, "- If the user asks a general knowledge question or something about a very recent event, you can use your search tool to find an answer, but always bring the conversation back to %s if possible.", first)
	return b.String(), nil
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return name
	}
	return fields[0]
}
