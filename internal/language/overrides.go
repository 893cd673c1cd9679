package language

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overrides is the optional languages config file. It can adjust the
// timeout, command templates, and container image of builtin profiles.
type Overrides struct {
	Languages []Override `yaml:"languages"`
}

// Override adjusts a single builtin profile. Zero-valued fields leave the
// builtin untouched.
type Override struct {
	ID      string   `yaml:"id"`
	Timeout string   `yaml:"timeout"`
	Compile []string `yaml:"compile"`
	Run     []string `yaml:"run"`
	Image   string   `yaml:"image"`
}

func (o Override) apply(p *Profile) error {
	if o.Timeout != "" {
		d, err := time.ParseDuration(o.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		p.Timeout = d
	}
	if o.Compile != nil {
		p.Compile = o.Compile
	}
	if o.Run != nil {
		p.Run = o.Run
	}
	if o.Image != "" {
		p.Image = o.Image
	}
	return nil
}

// LoadOverrides reads the languages config file. A missing file is fine -
// the builtin table is used as-is.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overrides{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &o, nil
}
