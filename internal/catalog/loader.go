package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/toolplan"
	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog document.
type File struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tools       []FileTool `yaml:"tools"`
}

// FileTool is one tool entry of a catalog document.
type FileTool struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	Consumes      []string `yaml:"consumes"`
	ConsumesAny   []string `yaml:"consumes_any"`
	Produces      []string `yaml:"produces"`
	ParallelOK    *bool    `yaml:"parallel_ok"` // omitted means true
	ResourceGroup string   `yaml:"resource_group"`
	Timeout       string   `yaml:"timeout"` // Go duration, e.g. "30s"
	SideEffects   bool     `yaml:"side_effects"`
}

// Loader reads tool specs from a source (e.g., file path).
type Loader interface {
	Load(source string) ([]toolplan.ToolSpec, error)
	Format() string // e.g., "yaml"
}

// loaderRegistry holds registered Loaders by format name.
var loaderRegistry = make(map[string]Loader)

// RegisterLoader registers a Loader for its format.
func RegisterLoader(loader Loader) {
	loaderRegistry[loader.Format()] = loader
}

// GetLoader retrieves a loader by format name (e.g., "yaml").
func GetLoader(format string) (Loader, bool) {
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements Loader for YAML documents.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) ([]toolplan.ToolSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, toolplan.NewConfigurationError(fmt.Sprintf("failed to read catalog file %s", path), err)
	}
	return Parse(data)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterLoader(YAMLLoader{})
}

// Parse decodes a YAML catalog document into specs.
func Parse(data []byte) ([]toolplan.ToolSpec, error) {
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil // empty document
		}
		return nil, toolplan.NewConfigurationError("failed to parse catalog YAML", err)
	}
	specs := make([]toolplan.ToolSpec, 0, len(doc.Tools))
	for i, t := range doc.Tools {
		spec, err := t.toSpec()
		if err != nil {
			return nil, toolplan.NewConfigurationError(fmt.Sprintf("invalid tool entry %d (%s)", i, t.Name), err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (t FileTool) toSpec() (toolplan.ToolSpec, error) {
	if strings.TrimSpace(t.Name) == "" {
		return toolplan.ToolSpec{}, fmt.Errorf("missing name")
	}
	spec := toolplan.ToolSpec{
		Name:          t.Name,
		Description:   t.Description,
		Consumes:      toTags(t.Consumes),
		ConsumesAny:   toTags(t.ConsumesAny),
		Produces:      toTags(t.Produces),
		ParallelOK:    t.ParallelOK == nil || *t.ParallelOK,
		ResourceGroup: t.ResourceGroup,
		SideEffects:   t.SideEffects,
	}
	if t.Timeout != "" {
		d, err := time.ParseDuration(t.Timeout)
		if err != nil {
			return toolplan.ToolSpec{}, fmt.Errorf("bad timeout %q: %w", t.Timeout, err)
		}
		if d < 0 {
			return toolplan.ToolSpec{}, fmt.Errorf("negative timeout %q", t.Timeout)
		}
		spec.Timeout = d
	}
	return spec, nil
}

func toTags(raw []string) toolplan.TagSet {
	tags := make(toolplan.TagSet, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(r); r != "" {
			tags.Add(toolplan.DataTag(r))
		}
	}
	return tags
}

// LoadFile loads specs from path using the loader registered for its
// extension (".yml" is treated as "yaml").
func LoadFile(path string) ([]toolplan.ToolSpec, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "yml" {
		format = "yaml"
	}
	loader, ok := GetLoader(format)
	if !ok {
		return nil, toolplan.NewConfigurationError(fmt.Sprintf("no catalog loader for format %q", format), nil)
	}
	return loader.Load(path)
}
