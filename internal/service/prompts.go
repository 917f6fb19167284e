package service

import (
	"fmt"
	"strings"

	"live_engagement/internal/domain"
)

func personaSystemPrompt(author domain.Persona, kind domain.EngagementKind) string {
	if kind == domain.KindQAndA {
		return fmt.Sprintf(
			"You are %s, taking part in the Q&A of a live broadcast. "+
				"Answer or ask in one or two short sentences, plain text, no markdown.", author.Name)
	}
	return fmt.Sprintf(
		"You are %s, taking part in the comment feed of a live broadcast. "+
			"Write one or two short, natural sentences, plain text, no markdown.", author.Name)
}

// replyPrompt просит персону ответить на сообщение с учетом предыдущего обмена репликами
func replyPrompt(trigger *domain.Trigger, transcript string) string {
	var b strings.Builder
	if transcript != "" {
		b.WriteString("Earlier in this thread:\n")
		b.WriteString(transcript)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "%s wrote: %q\n", trigger.SenderName, trigger.MessageText)
	if trigger.Kind == domain.KindQAndA {
		b.WriteString("Reply to this question.")
	} else {
		b.WriteString("Reply to this comment.")
	}
	return b.String()
}

func seedPrompt(kind domain.EngagementKind, session *domain.Session) string {
	topic := session.Title
	if topic == "" {
		topic = "the current broadcast"
	}
	if kind == domain.KindQAndA {
		return fmt.Sprintf("Open the Q&A with a question for the audience about %q.", topic)
	}
	return fmt.Sprintf("Start the conversation with a comment about %q.", topic)
}

// buildTranscript склеивает ответы родителя, написанные участником или самой персоной
func buildTranscript(replies []*domain.Message, senderName string, persona domain.Persona) string {
	lines := make([]string, 0, len(replies))
	for _, reply := range replies {
		if reply.Sender != senderName && reply.Sender != persona.Name {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", reply.Sender, reply.Text))
	}
	return strings.Join(lines, "\n")
}
