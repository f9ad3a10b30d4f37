package rag

import (
	"fmt"
	"strings"

	"github.com/markdave123-py/Cadence/internal/models"
)

const ideasSystemPrompt = "You are a content strategist planning social media posts for an agency's client. " +
	"Ground every idea in the provided client knowledge. Reply with only a JSON array and no other text."

const chatSystemPrompt = "You are an assistant for a content agency answering questions about one client. " +
	"Answer based only on the given client knowledge. If unsure, say 'I cannot find this in the client's material.'"

const imageSystemPrompt = "You review images for a content agency and describe how they could be used in the client's posts."

const noContext = "(no stored knowledge matched this request)"

// formatContext joins retrieved chunks in rank order.
func formatContext(matches []models.ChunkMatch) string {
	if len(matches) == 0 {
		return noContext
	}
	var sb strings.Builder
	for _, m := range matches {
		sb.WriteString(strings.TrimSpace(m.Content))
		sb.WriteString("\n---\n")
	}
	return sb.String()
}

func buildIdeasPrompt(client *models.Client, matches []models.ChunkMatch, monthContext, topic string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Client: %s\n\n", client.Name)
	fmt.Fprintf(&sb, "Client knowledge:\n%s\n", formatContext(matches))
	if mc := strings.TrimSpace(monthContext); mc != "" {
		fmt.Fprintf(&sb, "\nCalendar context:\n%s\n", mc)
	}
	fmt.Fprintf(&sb, "\nTopic: %s\n\n", strings.TrimSpace(topic))
	sb.WriteString("Return ONLY a JSON array of objects with the keys \"title\", \"scheduled_at\" (ISO 8601 date) ")
	sb.WriteString("and \"status\" (always \"draft\"). Do not wrap the array in prose or code fences.")
	return sb.String()
}

func buildChatPrompt(client *models.Client, matches []models.ChunkMatch, question string) string {
	return fmt.Sprintf("Client: %s\n\nContext:\n%s\n\nQuestion: %s", client.Name, formatContext(matches), strings.TrimSpace(question))
}

func buildImagePrompt(client *models.Client, instruction string) string {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		instruction = "Describe this image and suggest two post captions."
	}
	return fmt.Sprintf("Client: %s\n\n%s", client.Name, instruction)
}
