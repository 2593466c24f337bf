package scrape

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one monitored source in sources.yaml.
type SourceConfig struct {
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	ItemSelector  string `yaml:"item_selector"`
	TitleSelector string `yaml:"title_selector"`
	LinkSelector  string `yaml:"link_selector"`
	FetchBody     bool   `yaml:"fetch_body"`
}

type catalog struct {
	Sources []SourceConfig `yaml:"sources"`
}

// LoadSources reads the source catalog from a YAML file.
func LoadSources(path string) ([]SourceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %s: %w", path, err)
	}

	var parsed catalog
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	if len(parsed.Sources) == 0 {
		return nil, fmt.Errorf("sources file %s lists no sources", path)
	}

	seen := make(map[string]struct{}, len(parsed.Sources))
	for i, src := range parsed.Sources {
		name := strings.TrimSpace(src.Name)
		if name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("source %q has no url", name)
		}
		if strings.TrimSpace(src.ItemSelector) == "" {
			return nil, fmt.Errorf("source %q has no item_selector", name)
		}
	}
	return parsed.Sources, nil
}
