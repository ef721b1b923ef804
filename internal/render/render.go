// Package render produces product images of a jewelry design with an image-generation model.
package render

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"pnj.com/jewelry-designer/internal/artifact"
)

type View struct {
	Type        string
	Name        string
	Description string
}

// Views are generated in order within one model conversation so later views stay
// consistent with earlier ones.
var Views = []View{
	{Type: "front", Name: "Front View", Description: "showcasing the primary design elements, face-on perspective, centered composition"},
	{Type: "side", Name: "Side View", Description: "displaying the profile and depth, 90-degree angle from the front, showing thickness and dimension"},
	{Type: "top", Name: "Top View", Description: "revealing the overhead perspective, bird's eye view, showing the full layout and proportions"},
}

type Reference struct {
	MIMEType string
	Data     []byte
}

type Image struct {
	View     string
	MIMEType string
	Data     []byte
}

type Renderer struct {
	client *genai.Client
	model  string
}

func NewRenderer(ctx context.Context, apiKey, model string) (*Renderer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image generation client: %w", err)
	}
	return &Renderer{client: client, model: model}, nil
}

// Render generates one image per view. A view that fails is skipped; an error is returned
// only when no view could be produced.
func (r *Renderer) Render(ctx context.Context, design *artifact.Design, refs []Reference) ([]Image, error) {
	if design == nil {
		return nil, fmt.Errorf("design is required")
	}
	base := BaseDescription(design)
	var history []*genai.Content
	var images []Image
	var lastErr error

	for _, view := range Views {
		parts := []*genai.Part{{Text: ViewPrompt(view, base, viewTypes(images))}}
		if len(images) == 0 {
			for _, ref := range refs {
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: ref.MIMEType, Data: ref.Data}})
			}
		}
		turn := &genai.Content{Role: genai.RoleUser, Parts: parts}

		resp, err := r.client.Models.GenerateContent(ctx, r.model, append(history, turn), &genai.GenerateContentConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			Temperature:        genai.Ptr[float32](0.4),
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("Image generation for %s view failed: %v", view.Type, err)
			lastErr = err
			continue
		}
		img, modelTurn, ok := extractImage(resp)
		if !ok {
			log.Printf("Image generation for %s view returned no image", view.Type)
			lastErr = fmt.Errorf("no image returned for %s view", view.Type)
			continue
		}
		img.View = view.Type
		images = append(images, img)
		history = append(history, turn, modelTurn)
	}

	if len(images) == 0 {
		return nil, fmt.Errorf("image generation failed: %w", lastErr)
	}
	return images, nil
}

func extractImage(resp *genai.GenerateContentResponse) (Image, *genai.Content, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Image{}, nil, false
	}
	content := resp.Candidates[0].Content
	for _, part := range content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return Image{MIMEType: mime, Data: part.InlineData.Data}, content, true
		}
	}
	return Image{}, nil, false
}

// BaseDescription summarises the design for image prompts.
func BaseDescription(d *artifact.Design) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Jewelry design: %s\n", d.Name)
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n", d.Description)
	}
	if props := d.Properties.Describe(); props != "" {
		b.WriteString("Specifications:\n")
		b.WriteString(props)
	}
	return b.String()
}

func ViewPrompt(view View, base string, previous []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a photorealistic professional product photograph of this jewelry piece, %s, %s.\n\n", view.Name, view.Description)
	b.WriteString(base)
	b.WriteString("\nStyle: studio lighting, clean white background, high detail on metal texture and gemstones, no text or watermarks.")
	if len(previous) > 0 {
		fmt.Fprintf(&b, "\nKeep the piece identical to the %s view already generated; only the camera angle changes.", strings.Join(previous, " and "))
	}
	return b.String()
}

func viewTypes(images []Image) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.View)
	}
	return out
}
