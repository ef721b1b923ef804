// Package artifact models the structured payloads attached to chat messages: a jewelry
// design in progress or a list of recommended products.
package artifact

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Type string

const (
	TypeDesign         Type = "design"
	TypeRecommendation Type = "recommendation"
)

type Design struct {
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	Properties      Properties `json:"properties"`
	Images          []string   `json:"images,omitempty"`
	ThreeDModel     string     `json:"three_d_model,omitempty"`
	ReferenceImages []string   `json:"reference_images,omitempty"`
}

type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Properties  Properties `json:"properties"`
	Images      []string   `json:"images,omitempty"`
	ThreeDModel string     `json:"three_d_model,omitempty"`
	Price       float64    `json:"price"` // VND
}

// Artifact is a tagged variant: exactly one of Design or Products is meaningful, selected by Type.
type Artifact struct {
	ID       string    `json:"id"`
	Type     Type      `json:"type"`
	Design   *Design   `json:"design,omitempty"`
	Products []Product `json:"products,omitempty"`
}

func NewDesign(d Design) *Artifact {
	return &Artifact{ID: uuid.NewString(), Type: TypeDesign, Design: &d}
}

func NewRecommendation(products []Product) *Artifact {
	if products == nil {
		products = []Product{}
	}
	return &Artifact{ID: uuid.NewString(), Type: TypeRecommendation, Products: products}
}

// Validate checks the variant tag against its payload and every property vocabulary.
func (a *Artifact) Validate() error {
	errs := &ValidationError{}
	switch a.Type {
	case TypeDesign:
		if a.Design == nil {
			errs.Add("design", "required for design artifacts")
			break
		}
		if len(a.Products) > 0 {
			errs.Add("products", "not allowed on design artifacts")
		}
		a.Design.Properties.Validate("design.properties.", errs)
	case TypeRecommendation:
		if a.Design != nil {
			errs.Add("design", "not allowed on recommendation artifacts")
		}
		for i, p := range a.Products {
			p.Properties.Validate(fmt.Sprintf("products[%d].properties.", i), errs)
		}
	default:
		errs.Add("type", fmt.Sprintf("unknown artifact type %q", a.Type))
	}
	return errs.errOrNil()
}

// Clone returns a deep copy.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return nil
	}
	var out Artifact
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return &out
}

// Summary is a one-line human description used in fallback replies and logs.
func (a *Artifact) Summary() string {
	if a == nil {
		return ""
	}
	switch a.Type {
	case TypeDesign:
		if a.Design == nil {
			return "an empty design"
		}
		name := strings.TrimSpace(a.Design.Name)
		if name == "" {
			name = "untitled design"
		}
		return fmt.Sprintf("the design %q", name)
	case TypeRecommendation:
		names := make([]string, 0, len(a.Products))
		for _, p := range a.Products {
			names = append(names, p.Name)
		}
		if len(names) == 0 {
			return "no matching products"
		}
		return fmt.Sprintf("%d recommended products (%s)", len(names), strings.Join(names, ", "))
	}
	return string(a.Type)
}
