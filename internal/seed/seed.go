// Package seed ships the baseline program set embedded in the binary.
package seed

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Rezme-Inc/incentive-agent/internal/model"
)

//go:embed baseline.yaml
var baselineYAML []byte

type seedFile struct {
	Programs []model.Candidate `yaml:"programs"`
}

// Baseline returns the embedded known-authoritative federal programs.
func Baseline() ([]model.Candidate, error) {
	return parse(baselineYAML)
}

// FromFile loads seed candidates from a YAML file in the baseline format.
func FromFile(path string) ([]model.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "seed: read %s", path)
	}
	return parse(data)
}

func parse(data []byte) ([]model.Candidate, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "seed: parse yaml")
	}
	for i, c := range f.Programs {
		if err := c.Validate(); err != nil {
			return nil, eris.Wrapf(err, "seed: program %d", i)
		}
	}
	return f.Programs, nil
}
