package ecosystem

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/tomoyayamashita/iocgate/internal/lockfile"
)

// Config represents the lockfiles configuration
type Config struct {
	Lockfiles []LockfileConfig `yaml:"lockfiles"`
}

// LockfileConfig represents a single lockfile kind
type LockfileConfig struct {
	ID        string          `yaml:"id"`
	Ecosystem EcosystemID     `yaml:"ecosystem"`
	Format    lockfile.Format `yaml:"format"`
	Names     []string        `yaml:"names"`
	Patterns  []PatternConfig `yaml:"patterns"`
}

// PatternConfig represents a file name pattern configuration
type PatternConfig struct {
	Name      string `yaml:"name"`
	FileRegex string `yaml:"file_regex"`

	// Compiled regex (not in YAML)
	compiledRegex *regexp.Regexp
}

// LoadConfig loads lockfile configuration with 3-level fallback:
// 1. Explicit path (--lockfiles-config flag)
// 2. Home directory (~/.iocgate/lockfiles.yaml)
// 3. Embedded default (passed as defaultData)
func LoadConfig(path string, defaultData []byte) (*Config, error) {
	data, err := readConfigData(path, defaultData)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse lockfiles config: %w", err)
	}

	if err := config.compile(); err != nil {
		return nil, err
	}

	return &config, nil
}

func readConfigData(path string, defaultData []byte) ([]byte, error) {
	// Level 1: Explicit path
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read lockfiles config: %w", err)
		}
		return data, nil
	}

	// Level 2: Home directory
	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, ".iocgate", "lockfiles.yaml")
		if fileExists(homeConfig) {
			if data, err := os.ReadFile(homeConfig); err == nil {
				return data, nil
			}
		}
	}

	// Level 3: Embedded default
	return defaultData, nil
}

// compile validates every entry and compiles its patterns
func (c *Config) compile() error {
	if len(c.Lockfiles) == 0 {
		return fmt.Errorf("lockfiles config defines no lockfiles")
	}

	for i := range c.Lockfiles {
		lf := &c.Lockfiles[i]
		if _, err := lockfile.ParserFor(lf.Format); err != nil {
			return fmt.Errorf("lockfile %q: %w", lf.ID, err)
		}
		if lf.Ecosystem == "" {
			lf.Ecosystem = EcosystemNPM
		}

		for j := range lf.Patterns {
			pattern := &lf.Patterns[j]
			regex, err := regexp.Compile(pattern.FileRegex)
			if err != nil {
				return fmt.Errorf("lockfile %q pattern %q: %w", lf.ID, pattern.Name, err)
			}
			pattern.compiledRegex = regex
		}
	}

	return nil
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
