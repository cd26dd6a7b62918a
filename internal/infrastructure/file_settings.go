package infrastructure

import (
	"context"
	"fmt"
	"os"

	"adreport/internal/domain"

	"gopkg.in/yaml.v3"
)

type settingsFile struct {
	Projects []domain.ProjectSettings `yaml:"projects"`
}

// FileSettings serves project settings parsed from a YAML file at startup.
type FileSettings struct {
	projects map[string]domain.ProjectSettings
}

// LoadFileSettings reads and validates the settings file at path.
func LoadFileSettings(path string) (*FileSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return ParseFileSettings(data)
}

func ParseFileSettings(data []byte) (*FileSettings, error) {
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse settings file: %w", err)
	}

	projects := make(map[string]domain.ProjectSettings, len(f.Projects))
	for i, p := range f.Projects {
		if p.ID == "" {
			return nil, fmt.Errorf("project #%d has no id", i+1)
		}
		if _, dup := projects[p.ID]; dup {
			return nil, fmt.Errorf("duplicate project id %q", p.ID)
		}
		if err := validateSettings(p); err != nil {
			return nil, fmt.Errorf("project %q: %w", p.ID, err)
		}
		projects[p.ID] = p
	}
	return &FileSettings{projects: projects}, nil
}

func (f *FileSettings) ProjectSettings(ctx context.Context, projectID string) (*domain.ProjectSettings, error) {
	p, ok := f.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProjectNotFound, projectID)
	}
	return &p, nil
}

func validateSettings(p domain.ProjectSettings) error {
	sections := make(map[string]bool, len(p.Sections))
	for _, s := range p.Sections {
		if s.ID == "" {
			return fmt.Errorf("section without id")
		}
		sections[s.ID] = true
	}
	for _, m := range p.Platforms {
		if !sections[m.SectionID] {
			return fmt.Errorf("platform %q references unknown section %q", m.PlatformID, m.SectionID)
		}
		if !m.PlatformType.IsDelivery() {
			return fmt.Errorf("platform %q has unknown type %q", m.PlatformID, m.PlatformType)
		}
	}
	for _, l := range p.Links {
		if !sections[l.SectionID] {
			return fmt.Errorf("link %q references unknown section %q", l.LinkPrefix, l.SectionID)
		}
	}
	for _, a := range p.Accounts {
		if !a.Platform.IsDelivery() {
			return fmt.Errorf("account %q has unknown platform %q", a.AccountID, a.Platform)
		}
	}
	return nil
}
