package fetch

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFile lists the tools which have to be downloaded
	ConfigFile = "TOOLS.yml"
	// StampFile records which version of each tool was installed
	StampFile = "TOOLS.stamps"
)

// ToolSpec describes a single download
type ToolSpec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

// Config is the content of TOOLS.yml
type Config struct {
	Vars  map[string]string
	Tools map[string]ToolSpec
}

// Names returns the tool names in a stable order
func (cfg *Config) Names() []string {
	names := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// LoadConfig parses TOOLS.yml in root and returns the raw file content as well
func LoadConfig(root string) (*Config, []byte, error) {
	cfgPath := filepath.Join(root, ConfigFile)
	cfgData, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "Could not open file %s.", cfgPath)
	}

	cfg := &Config{}
	err = yaml.Unmarshal(cfgData, cfg)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "Failed to parse %s.", cfgPath)
	}

	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}

	for name, spec := range cfg.Tools {
		if spec.URL == "" || spec.Dest == "" {
			return nil, nil, eris.Errorf("Tool %s needs both url and dest", name)
		}

		if spec.Strip < 0 {
			return nil, nil, eris.Errorf("Tool %s has a negative strip value", name)
		}
	}

	return cfg, cfgData, nil
}

// LoadStamps reads TOOLS.stamps in root. A missing file results in an empty map.
func LoadStamps(root string) (map[string]string, error) {
	stamps := map[string]string{}
	stampPath := filepath.Join(root, StampFile)
	stampData, err := ioutil.ReadFile(stampPath)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return stamps, nil
		}
		return nil, eris.Wrapf(err, "Failed to read stamps file %s.", stampPath)
	}

	err = json.Unmarshal(stampData, &stamps)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse JSON file %s.", stampPath)
	}

	return stamps, nil
}

// SaveStamps writes the stamps to TOOLS.stamps in root
func SaveStamps(root string, stamps map[string]string) error {
	stampData, err := json.MarshalIndent(stamps, "", "  ")
	if err != nil {
		return eris.Wrap(err, "Failed to encode stamps")
	}

	stampPath := filepath.Join(root, StampFile)
	err = ioutil.WriteFile(stampPath, append(stampData, '\n'), 0o644)
	if err != nil {
		return eris.Wrapf(err, "Failed to write %s", stampPath)
	}

	return nil
}

func stampToken(spec ToolSpec) string {
	return spec.URL + "#" + spec.Sha256
}

// defaultVars returns the variables every condition can check in addition to the ones from TOOLS.yml
func defaultVars() map[string]string {
	vars := map[string]string{
		runtime.GOOS:   "true",
		runtime.GOARCH: "true",
	}
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	return vars
}

var varMatcher = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// evalConditions replaces the {VAR} placeholders in the spec's URL and reports whether the tool is needed
func evalConditions(spec *ToolSpec, vars map[string]string) bool {
	spec.URL = varMatcher.ReplaceAllStringFunc(spec.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(spec.Condition, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] == "" {
			return false
		}
	}

	for _, condition := range strings.Split(spec.Rejections, ",") {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}

		if vars[condition] != "" {
			return false
		}
	}
	return true
}

// updateChecksums sets tools.<name>.sha256 in the YAML document. Comments and key order are kept.
func updateChecksums(cfgData []byte, changes map[string]string) ([]byte, error) {
	var doc yaml.Node
	err := yaml.Unmarshal(cfgData, &doc)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to parse config")
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, eris.New("Unexpected config structure")
	}

	tools := mappingValue(doc.Content[0], "tools")
	if tools == nil {
		return nil, eris.New("Config has no tools section")
	}

	for name, checksum := range changes {
		tool := mappingValue(tools, name)
		if tool == nil {
			return nil, eris.Errorf("Failed to find the section for %s!", name)
		}

		value := mappingValue(tool, "sha256")
		if value == nil {
			tool.Content = append(tool.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "sha256"},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: checksum},
			)
		} else {
			value.Kind = yaml.ScalarNode
			value.Tag = "!!str"
			value.Style = 0
			value.Value = checksum
		}
	}

	buf := bytes.Buffer{}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err = enc.Encode(&doc)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to encode config")
	}

	err = enc.Close()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to encode config")
	}

	return buf.Bytes(), nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for idx := 0; idx+1 < len(node.Content); idx += 2 {
		if node.Content[idx].Value == key {
			return node.Content[idx+1]
		}
	}

	return nil
}
