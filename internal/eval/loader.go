package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// isYAML reports whether path names a YAML question set.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// LoadQuestions reads a question set from a JSON or YAML file. The file may
// hold a bare list or an object with a "questions" key.
func LoadQuestions(path string) ([]Question, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read questions file %s: %w", path, err)
	}
	questions, err := ParseQuestions(data, isYAML(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse questions from %s: %w", path, err)
	}
	return questions, nil
}

// questionSet is the wrapped file form.
type questionSet struct {
	Questions []Question `json:"questions" yaml:"questions"`
}

// ParseQuestions decodes and validates a question set.
func ParseQuestions(data []byte, asYAML bool) ([]Question, error) {
	var questions []Question
	var err error
	if asYAML {
		questions, err = decodeYAML(data)
	} else {
		questions, err = decodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	if err := ValidateQuestions(questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func decodeJSON(data []byte) ([]Question, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var set questionSet
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, err
		}
		return set.Questions, nil
	}
	var questions []Question
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func decodeYAML(data []byte) ([]Question, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.MappingNode {
		var set questionSet
		if err := root.Decode(&set); err != nil {
			return nil, err
		}
		return set.Questions, nil
	}
	var questions []Question
	if err := root.Decode(&questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// SaveQuestions validates questions and writes them to path, as YAML when
// the extension says so and as indented JSON otherwise. The write goes
// through a temporary file so readers never see a partial set.
func SaveQuestions(path string, questions []Question) error {
	if err := ValidateQuestions(questions); err != nil {
		return err
	}
	if questions == nil {
		questions = []Question{}
	}

	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(questions)
	} else {
		data, err = json.MarshalIndent(questions, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode questions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create questions directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".questions-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write questions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
