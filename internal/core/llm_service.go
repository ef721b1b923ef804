package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/config"
	"pnj.com/jewelry-designer/internal/tools"
)

const (
	defaultChatModelName   = "gemini-2.0-flash"
	defaultDesignModelName = "gemini-2.5-flash"
	defaultTitleModelName  = "gemini-2.0-flash"

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."

	designSystemInstruction = "You are an expert jewelry designer at PNJ. Turn the customer's request into a concrete, " +
		"manufacturable jewelry design. Use only the allowed values for enumerated properties and leave a property " +
		"empty when it does not apply. Keep the name short and the description to two or three sentences."
)

// LLMService talks to Gemini for chat turns, titles and structured design concepts.
type LLMService struct {
	client      *genai.Client
	chatModel   string
	designModel string
}

func NewLLMService(ctx context.Context) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	s := &LLMService{
		client:      client,
		chatModel:   config.AppConfig.ChatModel,
		designModel: config.AppConfig.DesignModel,
	}
	if s.chatModel == "" {
		s.chatModel = defaultChatModelName
	}
	if s.designModel == "" {
		s.designModel = defaultDesignModelName
	}
	return s, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// Generate implements Gateway.
func (s *LLMService) Generate(ctx context.Context, req *Request) (*Response, error) {
	if len(req.History) == 0 {
		return nil, fmt.Errorf("prompt history is empty for chat completion")
	}
	last := req.History[len(req.History)-1]
	if last.Role != RoleUser {
		return nil, fmt.Errorf("last message in history is not from 'user', cannot proceed with chat completion")
	}

	model := s.client.GenerativeModel(s.chatModel)
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, spec := range req.Tools {
			decls = append(decls, toFunctionDeclaration(spec))
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	history := make([]*genai.Content, 0, len(req.History)-1)
	for _, turn := range req.History[:len(req.History)-1] {
		if c := toContent(turn); c != nil {
			history = append(history, c)
		}
	}
	chatSession := model.StartChat()
	chatSession.History = history

	lastParts := toContent(last)
	if lastParts == nil {
		return nil, fmt.Errorf("last user turn has no content")
	}
	resp, err := chatSession.SendMessage(ctx, lastParts.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}
	return fromResponse(resp)
}

func fromResponse(resp *genai.GenerateContentResponse) (*Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini response was empty or had no valid candidates")
	}
	out := &Response{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			out.Calls = append(out.Calls, ToolCall{Name: p.Name, Args: p.Args})
		case *genai.FunctionCall:
			out.Calls = append(out.Calls, ToolCall{Name: p.Name, Args: p.Args})
		default:
			log.Printf("Gemini response part was not text or a function call: %T", part)
		}
	}
	out.Text = strings.TrimSpace(text.String())
	if out.Text == "" && len(out.Calls) == 0 {
		return nil, errors.New("gemini returned neither text nor function calls")
	}
	return out, nil
}

func toContent(turn Turn) *genai.Content {
	parts := make([]genai.Part, 0, len(turn.Parts))
	for _, p := range turn.Parts {
		switch {
		case p.Call != nil:
			parts = append(parts, genai.FunctionCall{Name: p.Call.Name, Args: p.Call.Args})
		case p.Result != nil:
			parts = append(parts, genai.FunctionResponse{Name: p.Result.Name, Response: p.Result.Response})
		case p.Image != nil:
			parts = append(parts, genai.Blob{MIMEType: p.Image.MIMEType, Data: p.Image.Data})
		case p.Text != "":
			parts = append(parts, genai.Text(p.Text))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	role := RoleUser
	if turn.Role == RoleModel {
		role = RoleModel
	}
	return &genai.Content{Role: role, Parts: parts}
}

func toFunctionDeclaration(spec tools.Spec) *genai.FunctionDeclaration {
	decl := &genai.FunctionDeclaration{Name: spec.Name, Description: spec.Description}
	// Gemini rejects object schemas without properties.
	if spec.Parameters != nil && len(spec.Parameters.Properties) > 0 {
		decl.Parameters = toGenaiSchema(spec.Parameters)
	}
	return decl
}

func toGenaiSchema(s *tools.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Enum:        s.Enum,
		Required:    s.Required,
	}
	switch s.Type {
	case tools.TypeObject:
		out.Type = genai.TypeObject
	case tools.TypeString:
		out.Type = genai.TypeString
	case tools.TypeNumber:
		out.Type = genai.TypeNumber
	case tools.TypeInteger:
		out.Type = genai.TypeInteger
	case tools.TypeBoolean:
		out.Type = genai.TypeBoolean
	case tools.TypeArray:
		out.Type = genai.TypeArray
		out.Items = toGenaiSchema(s.Items)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

func (s *LLMService) GenerateTitleForChat(ctx context.Context, chatSummary string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)

	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	userPromptForTitle := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: \"%s\".", chatSummary)

	resp, err := model.GenerateContent(ctx, genai.Text(userPromptForTitle))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "Chat", fmt.Errorf("LLM did not generate a title (empty response)")
	}

	var titleText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			titleText.WriteString(string(txt))
		}
	}

	if titleText.Len() == 0 {
		return "Chat", fmt.Errorf("LLM generated an empty title string")
	}

	return strings.Trim(titleText.String(), "\"'\n\r\t ."), nil
}

// DesignBrief is the input of a concept design request.
type DesignBrief struct {
	Description string
	Context     string
	Profile     string
	Current     *artifact.Design
	References  []InlineImage
}

// ConceptDesign asks the design model for a structured design. Enumerated properties are
// constrained to the vocabulary through the response schema and checked again on return.
func (s *LLMService) ConceptDesign(ctx context.Context, brief DesignBrief) (*artifact.Design, error) {
	model := s.client.GenerativeModel(s.designModel)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(designSystemInstruction)}}
	model.SetTemperature(0.8)
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = designResponseSchema()

	parts := []genai.Part{genai.Text(DesignPrompt(brief))}
	for _, ref := range brief.References {
		parts = append(parts, genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini design request failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("design model returned an empty response")
	}
	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}
	return ParseDesign(raw.String())
}

// DesignPrompt renders a brief as the user prompt of a design request.
func DesignPrompt(brief DesignBrief) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Design request: %s\n", strings.TrimSpace(brief.Description))
	if brief.Context != "" {
		fmt.Fprintf(&b, "\nConversation context:\n%s\n", brief.Context)
	}
	if brief.Profile != "" {
		fmt.Fprintf(&b, "\nCustomer profile:\n%s", brief.Profile)
	}
	if brief.Current != nil {
		fmt.Fprintf(&b, "\nRefine this existing design rather than starting over:\nName: %s\n%s\n%s",
			brief.Current.Name, brief.Current.Description, brief.Current.Properties.Describe())
	}
	if len(brief.References) > 0 {
		fmt.Fprintf(&b, "\n%d reference image(s) are attached; take inspiration from them.\n", len(brief.References))
	}
	return b.String()
}

// ParseDesign decodes a design model reply, tolerating a fenced code block around the JSON.
func ParseDesign(raw string) (*artifact.Design, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var d artifact.Design
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); err != nil {
		return nil, fmt.Errorf("failed to decode design: %w", err)
	}
	if strings.TrimSpace(d.Name) == "" {
		return nil, errors.New("design has no name")
	}
	if err := d.Properties.Check(); err != nil {
		return nil, fmt.Errorf("design model returned invalid properties: %w", err)
	}
	return &d, nil
}

func designResponseSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(artifact.PropertyKeys))
	for _, key := range artifact.PropertyKeys {
		switch {
		case artifact.Vocabulary[key] != nil:
			props[key] = &genai.Schema{Type: genai.TypeString, Format: "enum", Enum: artifact.Vocabulary[key]}
		case key == "weight":
			props[key] = &genai.Schema{Type: genai.TypeNumber, Description: "grams"}
		case key == "size":
			props[key] = &genai.Schema{Type: genai.TypeNumber, Description: "gemstone size in carats"}
		default:
			props[key] = &genai.Schema{Type: genai.TypeString}
		}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"name":        {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"properties":  {Type: genai.TypeObject, Properties: props, Required: []string{"jewelry_type", "metal"}},
		},
		Required: []string{"name", "description", "properties"},
	}
}
