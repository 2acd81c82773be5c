package classify

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the keyword table the classifier matches replies against.
// Phrases are compared case-insensitively on word boundaries; a phrase with
// no letters or digits (an emoji, say) is matched as a raw substring.
type Vocabulary struct {
	// OptOut phrases must equal the whole reply.
	OptOut   []string `yaml:"opt_out"`
	Help     []string `yaml:"help"`
	Positive []string `yaml:"positive"`
	Confirm  []string `yaml:"confirm"`
	Negative []string `yaml:"negative"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		OptOut:   []string{"stop", "stopall", "unsubscribe", "cancel", "end", "quit"},
		Help:     []string{"help", "info", "what is this", "who is this"},
		Positive: []string{"done", "did it", "finished", "complete", "completed", "taken", "took it", "all set", "✅", "👍"},
		Confirm:  []string{"yes", "y", "ok", "okay", "confirm", "sure", "agree", "start", "unstop"},
		Negative: []string{"no", "not yet", "not done", "skip", "skipped", "can't", "cannot", "didn't", "later"},
	}
}

// LoadVocabulary reads a YAML table. Lists missing from the file keep their
// defaults.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	return ParseVocabulary(data)
}

func ParseVocabulary(data []byte) (Vocabulary, error) {
	var file Vocabulary
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	v := DefaultVocabulary()
	if file.OptOut != nil {
		v.OptOut = file.OptOut
	}
	if file.Help != nil {
		v.Help = file.Help
	}
	if file.Positive != nil {
		v.Positive = file.Positive
	}
	if file.Confirm != nil {
		v.Confirm = file.Confirm
	}
	if file.Negative != nil {
		v.Negative = file.Negative
	}
	if len(v.OptOut) == 0 {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: opt_out list is empty")
	}
	return v, nil
}
