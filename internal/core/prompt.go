package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/store"
)

const assistantPersona = `You are a helpful AI assistant for PNJ Jewelry Designer.
You help users design jewelry, answer questions about jewelry,
and provide information about materials, styles, and pricing.

You have access to tools. Use generate_design when the user wants a new design or a change to
the current one, recommend_products when they want to see existing products similar to a design,
and list_jewelry_options when you need the allowed values for jewelry properties.
Only use property values from the allowed vocabularies. Reply in the user's language.`

// BuildSystemPrompt assembles the persona, the caller's profile and the current artifact.
func BuildSystemPrompt(user *store.User, current *artifact.Artifact) string {
	var b strings.Builder
	b.WriteString(assistantPersona)

	if profile := DescribeUser(user); profile != "" {
		b.WriteString("\n\n## Customer Profile\n")
		b.WriteString(profile)
	}

	if current != nil {
		raw, err := json.MarshalIndent(current, "", "  ")
		if err == nil {
			b.WriteString("\n\n## Current Artifact\n")
			b.WriteString("This is the design or recommendation the conversation is currently working on:\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// DescribeUser renders the demographic fields that are set, one "- Label: value" line each.
func DescribeUser(user *store.User) string {
	if user == nil {
		return ""
	}
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	line("Name", user.Name)
	line("Gender", user.Gender)
	if user.Age != nil {
		line("Age", fmt.Sprint(*user.Age))
	}
	line("Marital Status", user.MaritalStatus)
	line("Customer Segment", user.Segment)
	line("Region", user.Region)
	line("Nationality", user.Nationality)
	return b.String()
}
