package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"pnj.com/jewelry-designer/internal/artifact"
	"pnj.com/jewelry-designer/internal/render"
	"pnj.com/jewelry-designer/internal/store"
	"pnj.com/jewelry-designer/internal/tools"
)

const (
	ToolGenerateDesign     = "generate_design"
	ToolRecommendProducts  = "recommend_products"
	ToolListJewelryOptions = "list_jewelry_options"
)

type Designer interface {
	ConceptDesign(ctx context.Context, brief DesignBrief) (*artifact.Design, error)
}

type DesignRenderer interface {
	Render(ctx context.Context, design *artifact.Design, refs []render.Reference) ([]render.Image, error)
}

type imageLoader interface {
	Load(ctx context.Context, userID, imageID string) (*store.Image, []byte, error)
}

// ToolDeps are the collaborators the chat tools call into. Renderer may be nil, in which case
// designs are returned without product images.
type ToolDeps struct {
	Designer    Designer
	Renderer    DesignRenderer
	Images      imageLoader
	Recommender *RecommendationService
}

// NewToolRegistry builds the process-wide tool table.
func NewToolRegistry(deps ToolDeps) (*tools.Registry, error) {
	var list []tools.Tool
	if deps.Designer != nil {
		list = append(list, generateDesignTool(deps))
	}
	if deps.Recommender != nil {
		list = append(list, recommendProductsTool(deps.Recommender))
	}
	list = append(list, listOptionsTool())
	return tools.NewRegistry(list...)
}

func generateDesignTool(deps ToolDeps) tools.Tool {
	return tools.Tool{
		Name: ToolGenerateDesign,
		Description: "Create a new jewelry design, or refine the current one, from the customer's request. " +
			"Returns the design's name, description and properties, and renders product images.",
		Parameters: &tools.Schema{
			Type: tools.TypeObject,
			Properties: map[string]*tools.Schema{
				"description": {Type: tools.TypeString, Description: "What the customer wants, in detail."},
				"context":     {Type: tools.TypeString, Description: "Relevant details from earlier in the conversation."},
				"use_attached_images": {
					Type:        tools.TypeBoolean,
					Description: "Use the images attached to the current message as references. Defaults to true.",
				},
			},
			Required: []string{"description"},
		},
		Handler: func(ctx context.Context, inv *tools.Invocation, args map[string]any) (*tools.Result, error) {
			description := tools.String(args, "description")
			if description == "" {
				return nil, fmt.Errorf("description must not be empty")
			}
			brief := DesignBrief{
				Description: description,
				Context:     tools.String(args, "context"),
				Profile:     inv.Profile,
			}
			if inv.Current != nil && inv.Current.Type == artifact.TypeDesign {
				brief.Current = inv.Current.Design
			}

			var refIDs []string
			var refs []render.Reference
			if tools.Bool(args, "use_attached_images", true) && deps.Images != nil {
				for _, id := range inv.ImageIDs {
					img, data, err := deps.Images.Load(ctx, inv.UserID, id)
					if err != nil {
						return nil, fmt.Errorf("failed to load reference image %s: %w", id, err)
					}
					refIDs = append(refIDs, img.ID)
					refs = append(refs, render.Reference{MIMEType: img.ContentType, Data: data})
					brief.References = append(brief.References, InlineImage{MIMEType: img.ContentType, Data: data})
				}
			}

			design, err := deps.Designer.ConceptDesign(ctx, brief)
			if err != nil {
				return nil, fmt.Errorf("concept design failed: %w", err)
			}
			design.Images = nil
			if len(refIDs) > 0 {
				design.ReferenceImages = refIDs
			} else if brief.Current != nil {
				design.ReferenceImages = brief.Current.ReferenceImages
			}

			res := &tools.Result{}
			if deps.Renderer != nil {
				rendered, err := deps.Renderer.Render(ctx, design, refs)
				if err != nil {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					log.Printf("Warning: rendering design %q failed, returning it without images: %v", design.Name, err)
				}
				for _, img := range rendered {
					id := uuid.NewString()
					res.Images = append(res.Images, tools.GeneratedImage{
						ID:          id,
						Filename:    renderedFilename(design.Name, img),
						ContentType: img.MIMEType,
						Data:        img.Data,
					})
					design.Images = append(design.Images, id)
				}
			}

			res.Artifact = artifact.NewDesign(*design)
			res.Output = map[string]any{
				"name":        design.Name,
				"description": design.Description,
				"properties":  design.Properties,
				"image_count": len(design.Images),
			}
			return res, nil
		},
	}
}

func renderedFilename(name string, img render.Image) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, strings.TrimSpace(name))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "design"
	}
	ext := ".png"
	switch img.MIMEType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("%s-%s%s", slug, img.View, ext)
}

var recommendCriteria = []string{"target_audience", "jewelry_type", "metal", "gemstone", "style", "occasion"}

func recommendProductsTool(rec *RecommendationService) tools.Tool {
	props := map[string]*tools.Schema{
		"limit": {Type: tools.TypeInteger, Description: fmt.Sprintf("How many products to return (1-%d).", MaxRecommendations)},
	}
	for _, key := range recommendCriteria {
		props[key] = &tools.Schema{Type: tools.TypeString, Enum: artifact.Vocabulary[key]}
	}
	return tools.Tool{
		Name: ToolRecommendProducts,
		Description: "Find existing catalog products similar to the current design. Any criteria given " +
			"override the corresponding properties of the current design.",
		Parameters: &tools.Schema{Type: tools.TypeObject, Properties: props},
		Handler: func(ctx context.Context, inv *tools.Invocation, args map[string]any) (*tools.Result, error) {
			var criteria artifact.Properties
			if inv.Current != nil && inv.Current.Type == artifact.TypeDesign && inv.Current.Design != nil {
				criteria = inv.Current.Design.Properties
			}
			override := func(dst *string, key string) {
				if v := tools.String(args, key); v != "" {
					*dst = v
				}
			}
			override(&criteria.TargetAudience, "target_audience")
			override(&criteria.JewelryType, "jewelry_type")
			override(&criteria.Metal, "metal")
			override(&criteria.Gemstone, "gemstone")
			override(&criteria.Style, "style")
			override(&criteria.Occasion, "occasion")

			limit := tools.Int(args, "limit", NumRecommendations)
			if limit < 1 {
				return nil, fmt.Errorf("limit must be at least 1")
			}
			scored, err := rec.Recommend(criteria, limit)
			if err != nil {
				return nil, err
			}

			products := make([]artifact.Product, 0, len(scored))
			summary := make([]map[string]any, 0, len(scored))
			for _, sp := range scored {
				products = append(products, sp.Product.Artifact())
				summary = append(summary, map[string]any{
					"id":         sp.Product.ID,
					"name":       sp.Product.Name,
					"price":      sp.Product.Price,
					"similarity": sp.Similarity,
				})
			}
			return &tools.Result{
				Artifact: artifact.NewRecommendation(products),
				Output:   map[string]any{"count": len(products), "products": summary},
			}, nil
		},
	}
}

func listOptionsTool() tools.Tool {
	return tools.Tool{
		Name:        ToolListJewelryOptions,
		Description: "List the allowed values for each enumerated jewelry property.",
		Handler: func(ctx context.Context, inv *tools.Invocation, args map[string]any) (*tools.Result, error) {
			options := make(map[string]any, len(artifact.Vocabulary))
			for _, key := range artifact.EnumKeys() {
				options[key] = artifact.Vocabulary[key]
			}
			return &tools.Result{Output: map[string]any{"options": options}}, nil
		},
	}
}
