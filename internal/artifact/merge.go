package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

var (
	artifactKeys = []string{"id", "type", "design", "products"}
	designKeys   = []string{"name", "description", "properties", "images", "three_d_model", "reference_images"}
)

// Patch is a client-supplied partial artifact. Only the keys present in the request
// override the previous snapshot.
type Patch struct {
	Type     Type
	design   map[string]json.RawMessage
	props    map[string]json.RawMessage
	products []Product
}

// ParsePatch decodes and validates a partial artifact. Unknown keys and unknown enum
// values are rejected with a *ValidationError.
func ParsePatch(data []byte) (*Patch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	errs := &ValidationError{}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		errs.Add("artifact", "must be a JSON object")
		return nil, errs
	}
	rejectUnknown(top, artifactKeys, "artifact.", errs)

	p := &Patch{}
	if raw, ok := top["type"]; ok {
		_ = json.Unmarshal(raw, &p.Type)
	}

	switch p.Type {
	case TypeDesign:
		if _, ok := top["products"]; ok {
			errs.Add("artifact.products", "not allowed on design artifacts")
		}
		if raw, ok := top["design"]; ok && !isNull(raw) {
			if err := json.Unmarshal(raw, &p.design); err != nil {
				errs.Add("artifact.design", "must be a JSON object")
				break
			}
			rejectUnknown(p.design, designKeys, "artifact.design.", errs)
			if rawProps, ok := p.design["properties"]; ok && !isNull(rawProps) {
				if err := json.Unmarshal(rawProps, &p.props); err != nil {
					errs.Add("artifact.design.properties", "must be a JSON object")
					break
				}
				rejectUnknown(p.props, PropertyKeys, "artifact.design.properties.", errs)
			}
			delete(p.design, "properties")
			p.checkDesignShape(errs)
		}
	case TypeRecommendation:
		if _, ok := top["design"]; ok {
			errs.Add("artifact.design", "not allowed on recommendation artifacts")
		}
		if raw, ok := top["products"]; ok && !isNull(raw) {
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&p.products); err != nil {
				errs.Add("artifact.products", err.Error())
				break
			}
			for i, prod := range p.products {
				prod.Properties.Validate(fmt.Sprintf("artifact.products[%d].properties.", i), errs)
			}
		}
	default:
		errs.Add("artifact.type", `must be "design" or "recommendation"`)
	}

	if err := errs.errOrNil(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkDesignShape decodes the supplied fields alone to catch type errors and bad enum values early.
func (p *Patch) checkDesignShape(errs *ValidationError) {
	var d Design
	if err := decodeStrict(p.design, &d); err != nil {
		errs.Add("artifact.design", err.Error())
		return
	}
	var props Properties
	if err := decodeStrict(p.props, &props); err != nil {
		errs.Add("artifact.design.properties", err.Error())
		return
	}
	props.Validate("artifact.design.properties.", errs)
}

// Apply overlays the patch onto prev and returns a new snapshot; prev is not modified.
// Supplied fields replace previous values field by field. Collections are replaced, not merged.
// A patch of a different variant than prev starts from an empty artifact.
func (p *Patch) Apply(prev *Artifact) (*Artifact, error) {
	if p == nil {
		return prev.Clone(), nil
	}
	var base *Artifact
	if prev != nil && prev.Type == p.Type {
		base = prev.Clone()
	} else {
		base = &Artifact{ID: uuid.NewString(), Type: p.Type}
	}

	switch p.Type {
	case TypeDesign:
		if base.Design == nil {
			base.Design = &Design{}
		}
		fields, err := toMap(base.Design)
		if err != nil {
			return nil, err
		}
		props, err := toMap(base.Design.Properties)
		if err != nil {
			return nil, err
		}
		for k, v := range p.design {
			fields[k] = v
		}
		for k, v := range p.props {
			props[k] = v
		}
		delete(fields, "properties")

		var merged Design
		if err := decodeStrict(fields, &merged); err != nil {
			return nil, fmt.Errorf("merge design fields: %w", err)
		}
		if err := decodeStrict(props, &merged.Properties); err != nil {
			return nil, fmt.Errorf("merge design properties: %w", err)
		}
		base.Design = &merged
		base.Products = nil
	case TypeRecommendation:
		if p.products != nil {
			base.Products = append([]Product(nil), p.products...)
		}
		if base.Products == nil {
			base.Products = []Product{}
		}
		base.Design = nil
	}

	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

// Merge picks the artifact for a new assistant message. A model-produced artifact wins
// outright; otherwise the client patch is applied to prev; otherwise there is none.
func Merge(prev *Artifact, client *Patch, model *Artifact) (*Artifact, error) {
	if model != nil {
		if err := model.Validate(); err != nil {
			return nil, err
		}
		return model, nil
	}
	if client != nil {
		return client.Apply(prev)
	}
	return nil, nil
}

func rejectUnknown(m map[string]json.RawMessage, allowed []string, prefix string, errs *ValidationError) {
	for k := range m {
		if !contains(allowed, k) {
			errs.Add(prefix+k, "unknown field")
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func toMap(v any) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeStrict(m map[string]json.RawMessage, dst any) error {
	if m == nil {
		m = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
