package ai

import (
	"fmt"
	"strings"
)

// ContextDoc is a previously captured document offered to the model as
// background.
type ContextDoc struct {
	Title string
	Text  string
}

// Interview describes who is being interviewed and about what.
type Interview struct {
	ExpertName string
	ExpertRole string
	Topic      string
	Goal       string
	Context    []ContextDoc
}

const interviewPrompt = `You are a skilled knowledge-capture interviewer. Your job is to draw out the tacit, experience-based knowledge of an expert so it can be written down and reused by their colleagues.

How to interview:
- Ask ONE focused question at a time and wait for the answer.
- Prefer concrete prompts: "Walk me through the last time…", "What would a new hire get wrong here?", "What signal tells you…?"
- Follow up on vague answers until you get specifics: thresholds, names of tools, decision criteria, exceptions.
- Reflect back short summaries now and then so the expert can correct you.
- Do not lecture or give your own opinions. Keep replies under 120 words.
- When the topic feels covered, say so and ask whether anything important is missing.`

// InterviewSystemPrompt builds the system prompt for an interview session.
func InterviewSystemPrompt(iv Interview) string {
	var sb strings.Builder
	sb.WriteString(interviewPrompt)
	sb.WriteString("\n\n---\n")
	if iv.ExpertName != "" {
		fmt.Fprintf(&sb, "Expert: %s", iv.ExpertName)
		if iv.ExpertRole != "" {
			fmt.Fprintf(&sb, " (%s)", iv.ExpertRole)
		}
		sb.WriteString("\n")
	}
	if iv.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %q\n", iv.Topic)
	}
	if iv.Goal != "" {
		fmt.Fprintf(&sb, "Goal: %s\n", iv.Goal)
	}
	writeContext(&sb, "Background documents already captured (do not re-ask what they answer):", iv.Context)
	return sb.String()
}

const documentPrompt = `Turn the interview transcript below into a clear, well-structured knowledge document written in Markdown.

Rules:
- Start with a single "# " title line.
- Use "## " sections such as Overview, Key Steps, Decision Criteria, Pitfalls, Tips. Omit sections with no content.
- Use bullet or numbered lists for steps and checklists.
- Keep the expert's concrete details (numbers, names, thresholds). Do not invent facts.
- Write in the third person, neutral tone.

Respond with ONLY the Markdown document.`

// DocumentPrompt asks the model to write up an interview transcript.
func DocumentPrompt(iv Interview, transcript []Message) string {
	var sb strings.Builder
	sb.WriteString(documentPrompt)
	sb.WriteString("\n\n---\n")
	if iv.Topic != "" {
		fmt.Fprintf(&sb, "Topic: %q\n", iv.Topic)
	}
	if iv.ExpertName != "" {
		fmt.Fprintf(&sb, "Expert: %s\n", iv.ExpertName)
	}
	sb.WriteString("---\n")
	for _, m := range transcript {
		speaker := "Interviewer"
		if m.Role == "user" {
			speaker = "Expert"
		}
		fmt.Fprintf(&sb, "%s: %s\n\n", speaker, strings.TrimSpace(m.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

const playbookPrompt = `Synthesize the knowledge documents below into a single practical playbook. Combine overlapping advice, surface disagreements between experts, and keep concrete details.

Return a JSON object with these fields:
- "title": playbook title (string, max 120 chars)
- "summary": 2-4 sentence overview (string)
- "sections": list of objects with "heading" (string), "body" (Markdown string) and "sources" (list of document titles the section draws on)

Rules:
- 3 to 12 sections, ordered the way a practitioner would use them.
- Only use information present in the documents.
- Respond with ONLY the JSON object, no other text.`

// PlaybookPrompt builds the synthesis prompt for a set of documents.
func PlaybookPrompt(title string, docs []ContextDoc) string {
	var sb strings.Builder
	sb.WriteString(playbookPrompt)
	if title != "" {
		fmt.Fprintf(&sb, "\n\nRequested title: %q", title)
	}
	writeContext(&sb, "\n\nDocuments:", docs)
	return strings.TrimRight(sb.String(), "\n")
}

func writeContext(sb *strings.Builder, heading string, docs []ContextDoc) {
	if len(docs) == 0 {
		return
	}
	sb.WriteString(heading)
	sb.WriteString("\n")
	for i, d := range docs {
		fmt.Fprintf(sb, "\n<document index=%d title=%q>\n%s\n</document>\n", i+1, d.Title, d.Text)
	}
}

// CleanMarkdown strips a code fence the model sometimes wraps around a
// Markdown reply.
func CleanMarkdown(raw string) string {
	return stripCodeBlock(raw)
}
