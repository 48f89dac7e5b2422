package records

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Kind string

const (
	KindMedication Kind = "medication"
	KindFood       Kind = "food"
	KindMood       Kind = "mood"
	KindPain       Kind = "pain"
	KindBowel      Kind = "bowel"
)

// Kinds lists every record variant in storage order.
var Kinds = []Kind{KindMedication, KindFood, KindMood, KindPain, KindBowel}

// ParseKind accepts the singular kind or its list name ("pains", "medications").
func ParseKind(raw string) (Kind, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch v {
	case "medication", "medications":
		return KindMedication, nil
	case "food", "foods":
		return KindFood, nil
	case "mood", "moods":
		return KindMood, nil
	case "pain", "pains":
		return KindPain, nil
	case "bowel", "bowels":
		return KindBowel, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", raw)
	}
}

// Record is a single time-stamped health-log entry. Kind is the discriminant;
// Metadata holds the kind-specific payload as supplied by the client.
type Record struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind,omitempty"`
	CreatedDate string         `json:"createdDate"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// PainScore reads metadata.painScore. It reports false for non-pain records and
// for pain records without a numeric score.
func (r Record) PainScore() (float64, bool) {
	if r.Kind != KindPain || r.Metadata == nil {
		return 0, false
	}
	switch v := r.Metadata["painScore"].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Collection is the per-user document: five independently optional lists.
type Collection struct {
	Medications []Record `json:"medications,omitempty"`
	Foods       []Record `json:"foods,omitempty"`
	Moods       []Record `json:"moods,omitempty"`
	Pains       []Record `json:"pains,omitempty"`
	Bowel       []Record `json:"bowel,omitempty"`
}

// List returns the list holding records of kind k.
func (c *Collection) List(k Kind) *[]Record {
	switch k {
	case KindMedication:
		return &c.Medications
	case KindFood:
		return &c.Foods
	case KindMood:
		return &c.Moods
	case KindPain:
		return &c.Pains
	case KindBowel:
		return &c.Bowel
	default:
		return nil
	}
}

// Append routes r to the list matching its Kind.
func (c *Collection) Append(r Record) error {
	list := c.List(r.Kind)
	if list == nil {
		return fmt.Errorf("unknown record kind %q", r.Kind)
	}
	*list = append(*list, r)
	return nil
}

// All flattens the collection. Each returned record has Kind set from the list
// it came from, whatever the stored value said.
func (c Collection) All() []Record {
	out := make([]Record, 0, c.Len())
	for _, k := range Kinds {
		for _, r := range *c.List(k) {
			r.Kind = k
			out = append(out, r)
		}
	}
	return out
}

func (c Collection) Len() int {
	return len(c.Medications) + len(c.Foods) + len(c.Moods) + len(c.Pains) + len(c.Bowel)
}

// Clone deep-copies the lists (metadata maps are shared).
func (c Collection) Clone() Collection {
	out := Collection{}
	for _, k := range Kinds {
		src := *c.List(k)
		if src == nil {
			continue
		}
		dst := make([]Record, len(src))
		copy(dst, src)
		*out.List(k) = dst
	}
	return out
}
