package affordance

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZanzyTHEbar/toolplan"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk rule table document.
type RuleFile struct {
	// ExtendDefaults appends Rules after DefaultRules instead of replacing them.
	ExtendDefaults bool   `yaml:"extend_defaults"`
	Rules          []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML rule document and checks that every condition
// parses. The remaining rule checks happen in New.
func ParseRules(data []byte) ([]Rule, error) {
	var doc RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, toolplan.NewConfigurationError("failed to parse affordance rules YAML", err)
	}
	for _, r := range doc.Rules {
		if err := ValidateCondition(r.Condition); err != nil {
			return nil, toolplan.NewConfigurationError(fmt.Sprintf("rule %q has an invalid condition", r.Name), err)
		}
	}
	if doc.ExtendDefaults {
		return append(DefaultRules(), doc.Rules...), nil
	}
	return doc.Rules, nil
}

// LoadRules reads and parses a YAML rule file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, toolplan.NewConfigurationError(fmt.Sprintf("failed to read rules file %s", path), err)
	}
	return ParseRules(data)
}
