package artifact

import (
	"fmt"
	"sort"
	"strings"
)

// Vocabulary holds the closed value sets for enumerated jewelry properties.
var Vocabulary = map[string][]string{
	"target_audience": {"men", "women", "unisex", "couple", "personalized"},
	"jewelry_type":    {"ring", "bracelet", "bangle", "necklace", "earring", "anklet"},
	"metal":           {"24k_gold", "22k_gold", "18k_gold", "14k_gold", "10k_gold", "silver", "platinum"},
	"gemstone": {
		"diamond", "sapphire", "emerald", "amethyst", "ruby", "citrine", "tourmaline", "topaz",
		"garnet", "peridot", "spinel", "cubic_zirconia", "aquamarine", "opal", "moonstone", "pearl",
	},
	"shape":    {"round", "oval", "marquise", "pear", "heart", "radiant", "emerald", "cushion", "princess"},
	"style":    {"classic", "modern", "vintage", "minimalist", "luxury", "personality", "natural"},
	"occasion": {"wedding", "engagement", "casual", "formal", "party", "daily_wear"},
}

// PropertyKeys lists every key a Properties object may carry, in display order.
var PropertyKeys = []string{
	"target_audience", "jewelry_type", "metal", "color", "thickness", "weight",
	"gemstone", "shape", "size", "style", "occasion", "inspiration",
}

// EnumKeys returns the enumerated property keys in a stable order.
func EnumKeys() []string {
	keys := make([]string, 0, len(Vocabulary))
	for k := range Vocabulary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValid reports whether value belongs to the vocabulary of key. Empty means unset and is valid.
func IsValid(key, value string) bool {
	if value == "" {
		return true
	}
	for _, v := range Vocabulary[key] {
		if v == value {
			return true
		}
	}
	return false
}

// Properties is the closed set of typed jewelry fields.
type Properties struct {
	TargetAudience string   `json:"target_audience,omitempty"`
	JewelryType    string   `json:"jewelry_type,omitempty"`
	Metal          string   `json:"metal,omitempty"`
	Color          string   `json:"color,omitempty"`
	Thickness      string   `json:"thickness,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	Gemstone       string   `json:"gemstone,omitempty"`
	Shape          string   `json:"shape,omitempty"`
	Size           *float64 `json:"size,omitempty"`
	Style          string   `json:"style,omitempty"`
	Occasion       string   `json:"occasion,omitempty"`
	Inspiration    string   `json:"inspiration,omitempty"`
}

// Enum returns the value of an enumerated property by key.
func (p Properties) Enum(key string) string {
	switch key {
	case "target_audience":
		return p.TargetAudience
	case "jewelry_type":
		return p.JewelryType
	case "metal":
		return p.Metal
	case "gemstone":
		return p.Gemstone
	case "shape":
		return p.Shape
	case "style":
		return p.Style
	case "occasion":
		return p.Occasion
	}
	return ""
}

// Validate checks every enumerated field against its vocabulary. prefix is prepended to field names.
func (p Properties) Validate(prefix string, errs *ValidationError) {
	for _, key := range EnumKeys() {
		if v := p.Enum(key); !IsValid(key, v) {
			errs.Add(prefix+key, fmt.Sprintf("unknown value %q, expected one of: %s", v, strings.Join(Vocabulary[key], ", ")))
		}
	}
	if p.Weight != nil && *p.Weight < 0 {
		errs.Add(prefix+"weight", "must not be negative")
	}
	if p.Size != nil && *p.Size < 0 {
		errs.Add(prefix+"size", "must not be negative")
	}
}

// Check is Validate for standalone property sets; it returns a *ValidationError or nil.
func (p Properties) Check() error {
	errs := &ValidationError{}
	p.Validate("", errs)
	return errs.errOrNil()
}

// Describe renders the set properties as "- Label: value" lines.
func (p Properties) Describe() string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, value)
		}
	}
	line("Target audience", p.TargetAudience)
	line("Type", p.JewelryType)
	line("Metal", p.Metal)
	line("Color", p.Color)
	line("Thickness", p.Thickness)
	if p.Weight != nil {
		line("Weight", fmt.Sprintf("%gg", *p.Weight))
	}
	line("Gemstone", p.Gemstone)
	line("Gemstone shape", p.Shape)
	if p.Size != nil {
		line("Gemstone size", fmt.Sprintf("%g carats", *p.Size))
	}
	line("Style", p.Style)
	line("Occasion", p.Occasion)
	line("Inspiration", p.Inspiration)
	return b.String()
}

// ValidationError collects field-level problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid artifact: " + strings.Join(parts, "; ")
}

// errOrNil returns nil when no field error was recorded.
func (e *ValidationError) errOrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
