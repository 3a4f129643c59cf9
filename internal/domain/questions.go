package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Difficulty tiers of a question set.
const (
	TierEasy   = "easy"
	TierMedium = "medium"
	TierHard   = "hard"
)

// Question models an MCQ question whose correct option is stored as text.
type Question struct {
	ID         string   `json:"id,omitempty" yaml:"id"`
	Prompt     string   `json:"question" yaml:"question"`
	Options    []string `json:"options" yaml:"options"`
	Answer     string   `json:"answer" yaml:"answer"`
	Difficulty string   `json:"difficulty,omitempty" yaml:"difficulty"`
}

// QuestionSet is a quiz partitioned by difficulty tier.
type QuestionSet struct {
	Easy   []Question `json:"easy,omitempty" yaml:"easy"`
	Medium []Question `json:"medium,omitempty" yaml:"medium"`
	Hard   []Question `json:"hard,omitempty" yaml:"hard"`
}

// UnmarshalJSON accepts the tiered object, the same object wrapped under a
// "questions" key, or a flat array which lands in the medium tier.
func (s *QuestionSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = QuestionSet{}
		return nil
	}
	if trimmed[0] == '[' {
		var flat []Question
		if err := json.Unmarshal(trimmed, &flat); err != nil {
			return err
		}
		*s = QuestionSet{Medium: flat}
		return nil
	}

	var wrapped struct {
		Questions json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	if inner := bytes.TrimSpace(wrapped.Questions); len(inner) > 0 && !bytes.Equal(inner, []byte("null")) {
		return s.UnmarshalJSON(inner)
	}

	type tiers QuestionSet
	var t tiers
	if err := json.Unmarshal(trimmed, &t); err != nil {
		return err
	}
	*s = QuestionSet(t)
	return nil
}

// UnmarshalYAML accepts the same three shapes as UnmarshalJSON.
func (s *QuestionSet) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var flat []Question
		if err := value.Decode(&flat); err != nil {
			return err
		}
		*s = QuestionSet{Medium: flat}
		return nil
	case yaml.MappingNode:
		var wrapped struct {
			Questions *yaml.Node `yaml:"questions"`
		}
		if err := value.Decode(&wrapped); err != nil {
			return err
		}
		if wrapped.Questions != nil {
			return s.UnmarshalYAML(wrapped.Questions)
		}
		type tiers QuestionSet
		var t tiers
		if err := value.Decode(&t); err != nil {
			return err
		}
		*s = QuestionSet(t)
		return nil
	case yaml.ScalarNode:
		if value.Tag == "!!null" {
			*s = QuestionSet{}
			return nil
		}
	}
	return fmt.Errorf("line %d: question set must be a list or a mapping", value.Line)
}

// Total is the number of questions across all tiers.
func (s QuestionSet) Total() int {
	return len(s.Easy) + len(s.Medium) + len(s.Hard)
}

// Ordered returns every question, easy tier first.
func (s QuestionSet) Ordered() []Question {
	out := make([]Question, 0, s.Total())
	out = append(out, s.Easy...)
	out = append(out, s.Medium...)
	out = append(out, s.Hard...)
	return out
}

// Normalized returns a copy in which every question carries its tier and a
// unique ID. Missing or repeated IDs are derived from tier and position,
// e.g. "hard-2", skipping any ID already given explicitly in the set.
func (s QuestionSet) Normalized() QuestionSet {
	explicit := make(map[string]struct{}, s.Total())
	for _, q := range s.Ordered() {
		if q.ID != "" {
			explicit[q.ID] = struct{}{}
		}
	}
	assigned := make(map[string]struct{}, s.Total())
	return QuestionSet{
		Easy:   normalizeTier(s.Easy, TierEasy, explicit, assigned),
		Medium: normalizeTier(s.Medium, TierMedium, explicit, assigned),
		Hard:   normalizeTier(s.Hard, TierHard, explicit, assigned),
	}
}

func normalizeTier(in []Question, tier string, explicit, assigned map[string]struct{}) []Question {
	if len(in) == 0 {
		return nil
	}
	out := make([]Question, len(in))
	for i, q := range in {
		if _, dup := assigned[q.ID]; q.ID == "" || dup {
			q.ID = freeID(tier+"-"+strconv.Itoa(i), explicit, assigned)
		}
		assigned[q.ID] = struct{}{}
		q.Difficulty = tier
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// freeID returns base, or base-2, base-3 and so on, whichever is first unused.
func freeID(base string, explicit, assigned map[string]struct{}) string {
	id := base
	for n := 2; ; n++ {
		_, isExplicit := explicit[id]
		_, isAssigned := assigned[id]
		if !isExplicit && !isAssigned {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}
