// Package catalog holds the exam -> domain -> concentration area tree a user
// picks a flashcard topic from.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"flashcard-backend/internal/models"
)

//go:embed exam_topics.json
var defaultTopics []byte

type Domain struct {
	Name               string   `json:"name"`
	ConcentrationAreas []string `json:"concentration_areas"`
}

type Exam struct {
	Domains []Domain `json:"domains"`
}

type Catalog struct {
	exams map[string]Exam
}

// Load reads the catalog from path, or the embedded default when path is
// empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultTopics)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read exam topics: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var exams map[string]Exam
	if err := json.Unmarshal(data, &exams); err != nil {
		return nil, fmt.Errorf("failed to parse exam topics: %w", err)
	}
	if len(exams) == 0 {
		return nil, fmt.Errorf("exam topics file has no exams")
	}
	return &Catalog{exams: exams}, nil
}

// All returns the full tree, keyed by exam name.
func (c *Catalog) All() map[string]Exam {
	return c.exams
}

func (c *Catalog) Exams() []string {
	names := make([]string, 0, len(c.exams))
	for name := range c.exams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) Concentrations(exam, domain string) ([]string, bool) {
	e, ok := c.exams[exam]
	if !ok {
		return nil, false
	}
	for _, d := range e.Domains {
		if d.Name == domain {
			return d.ConcentrationAreas, true
		}
	}
	return nil, false
}

// Validate returns a field -> message map describing what is wrong with sel,
// or nil when the selection names an existing concentration area.
func (c *Catalog) Validate(sel models.TopicSelection) map[string]string {
	fieldErrors := make(map[string]string)

	if sel.Exam == "" {
		fieldErrors["exam"] = "Exam is required"
	} else if _, ok := c.exams[sel.Exam]; !ok {
		fieldErrors["exam"] = "Unknown exam"
	}
	if sel.Domain == "" {
		fieldErrors["domain"] = "Domain is required"
	}
	if sel.Concentration == "" {
		fieldErrors["concentration"] = "Concentration area is required"
	}
	if len(fieldErrors) > 0 {
		return fieldErrors
	}

	areas, ok := c.Concentrations(sel.Exam, sel.Domain)
	if !ok {
		return map[string]string{"domain": "Unknown domain for " + sel.Exam}
	}
	for _, area := range areas {
		if area == sel.Concentration {
			return nil
		}
	}
	return map[string]string{"concentration": "Unknown concentration area for " + sel.Domain}
}

// FormatTopic renders a selection as the topic string sent to the
// generator: "{exam} - {domain} ({concentration})".
func FormatTopic(sel models.TopicSelection) string {
	return fmt.Sprintf("%s - %s (%s)",
		strings.TrimSpace(sel.Exam), strings.TrimSpace(sel.Domain), strings.TrimSpace(sel.Concentration))
}
