package core

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/tools"
)

func TestToFunctionDeclaration(t *testing.T) {
	decl := toFunctionDeclaration(tools.Spec{Name: "noop", Description: "nothing", Parameters: &tools.Schema{Type: tools.TypeObject}})
	assert.Equal(t, "noop", decl.Name)
	assert.Nil(t, decl.Parameters)

	decl = toFunctionDeclaration(tools.Spec{Name: "find", Parameters: &tools.Schema{
		Type: tools.TypeObject,
		Properties: map[string]*tools.Schema{
			"metal": {Type: tools.TypeString, Enum: []string{"silver"}},
			"tags":  {Type: tools.TypeArray, Items: &tools.Schema{Type: tools.TypeString}},
			"limit": {Type: tools.TypeInteger},
		},
		Required: []string{"metal"},
	}})
	require.NotNil(t, decl.Parameters)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.Equal(t, []string{"metal"}, decl.Parameters.Required)
	assert.Equal(t, []string{"silver"}, decl.Parameters.Properties["metal"].Enum)
	assert.Equal(t, genai.TypeArray, decl.Parameters.Properties["tags"].Type)
	assert.Equal(t, genai.TypeString, decl.Parameters.Properties["tags"].Items.Type)
	assert.Equal(t, genai.TypeInteger, decl.Parameters.Properties["limit"].Type)
}

func TestToContent(t *testing.T) {
	assert.Nil(t, toContent(Turn{Role: RoleUser, Parts: []Part{{Text: ""}}}))

	c := toContent(Turn{Role: RoleModel, Parts: []Part{
		{Text: "thinking"},
		{Call: &ToolCall{Name: "find", Args: map[string]any{"metal": "silver"}}},
	}})
	require.NotNil(t, c)
	assert.Equal(t, RoleModel, c.Role)
	require.Len(t, c.Parts, 2)
	assert.Equal(t, genai.Text("thinking"), c.Parts[0])
	assert.Equal(t, genai.FunctionCall{Name: "find", Args: map[string]any{"metal": "silver"}}, c.Parts[1])

	c = toContent(Turn{Role: RoleUser, Parts: []Part{
		{Result: &ToolResult{Name: "find", Response: map[string]any{"success": true}}},
		{Image: &InlineImage{MIMEType: "image/png", Data: []byte{1}}},
	}})
	assert.Equal(t, RoleUser, c.Role)
	assert.Equal(t, genai.FunctionResponse{Name: "find", Response: map[string]any{"success": true}}, c.Parts[0])
	assert.Equal(t, genai.Blob{MIMEType: "image/png", Data: []byte{1}}, c.Parts[1])
}

func TestFromResponse(t *testing.T) {
	_, err := fromResponse(nil)
	assert.Error(t, err)

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{
			genai.Text("Let me check. "),
			genai.FunctionCall{Name: "recommend_products", Args: map[string]any{"metal": "silver"}},
			&genai.FunctionCall{Name: "list_jewelry_options"},
		}},
	}}}
	out, err := fromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Let me check.", out.Text)
	require.Len(t, out.Calls, 2)
	assert.Equal(t, "recommend_products", out.Calls[0].Name)
	assert.Equal(t, "silver", out.Calls[0].Args["metal"])
	assert.Equal(t, "list_jewelry_options", out.Calls[1].Name)

	empty := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}
	_, err = fromResponse(empty)
	assert.Error(t, err)
}

func TestParseDesign(t *testing.T) {
	d, err := ParseDesign("```json\n{\"name\":\"Lotus\",\"description\":\"d\",\"properties\":{\"metal\":\"silver\",\"weight\":3.5}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Lotus", d.Name)
	assert.Equal(t, "silver", d.Properties.Metal)
	require.NotNil(t, d.Properties.Weight)
	assert.Equal(t, 3.5, *d.Properties.Weight)

	_, err = ParseDesign(`{"name":"X","properties":{"metal":"bronze"}}`)
	assert.Error(t, err)
	_, err = ParseDesign(`{"description":"no name"}`)
	assert.Error(t, err)
	_, err = ParseDesign(`not json`)
	assert.Error(t, err)
}

func TestDesignPrompt(t *testing.T) {
	p := DesignPrompt(DesignBrief{
		Description: "a ring",
		Profile:     "- Region: south\n",
		Current:     &artifact.Design{Name: "Draft", Properties: artifact.Properties{Metal: "silver"}},
		References:  []InlineImage{{MIMEType: "image/png"}},
	})
	assert.Contains(t, p, "Design request: a ring")
	assert.Contains(t, p, "Region: south")
	assert.Contains(t, p, "Name: Draft")
	assert.Contains(t, p, "- Metal: silver")
	assert.Contains(t, p, "1 reference image(s)")
}

func TestDesignResponseSchemaUsesVocabulary(t *testing.T) {
	s := designResponseSchema()
	props := s.Properties["properties"].Properties
	assert.Equal(t, artifact.Vocabulary["gemstone"], props["gemstone"].Enum)
	assert.Equal(t, genai.TypeNumber, props["weight"].Type)
	assert.Equal(t, genai.TypeString, props["color"].Type)
	assert.Len(t, props, len(artifact.PropertyKeys))
}
