// Package manifest converts the JSON sources list written by flatpak-cargo-generator into the YAML
// fragment included by the Flatpak manifest.
package manifest

import (
	"bytes"
	"encoding/json"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Convert reads exactly one JSON document from r and writes it as YAML to w. Object keys keep their
// original order so the same input always produces the same output.
func Convert(r io.Reader, w io.Writer) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	root, err := decodeValue(dec)
	if err != nil {
		return err
	}

	_, err = dec.Token()
	if err != io.EOF {
		return eris.Errorf("unexpected data after the JSON document at offset %d", dec.InputOffset())
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err = enc.Encode(&yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{root},
	})
	if err != nil {
		return eris.Wrap(err, "failed to encode YAML")
	}

	err = enc.Close()
	if err != nil {
		return eris.Wrap(err, "failed to encode YAML")
	}

	return nil
}

// ConvertFile converts the JSON file input into the YAML file output. If output is empty, the input's
// extension is replaced with .yml. An existing output is only replaced if force is set.
func ConvertFile(input, output string, force bool) (string, error) {
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".yml"
	}

	if !force {
		_, err := os.Stat(output)
		if err == nil {
			return output, eris.Errorf("%s already exists, pass -f to overwrite it", output)
		}

		if !eris.Is(err, os.ErrNotExist) {
			return output, eris.Wrapf(err, "failed to check %s", output)
		}
	}

	handle, err := os.Open(input)
	if err != nil {
		return output, eris.Wrapf(err, "failed to open %s", input)
	}
	defer handle.Close()

	// convert into memory first so that a broken input never leaves a truncated output behind
	var buf bytes.Buffer
	err = Convert(handle, &buf)
	if err != nil {
		return output, eris.Wrapf(err, "failed to convert %s", input)
	}

	err = ioutil.WriteFile(output, buf.Bytes(), 0644)
	if err != nil {
		return output, eris.Wrapf(err, "failed to write %s", output)
	}

	return output, nil
}

func decodeValue(dec *json.Decoder) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, eris.New("unexpected end of JSON input")
		}
		return nil, eris.Wrapf(err, "invalid JSON near offset %d", dec.InputOffset())
	}

	switch value := tok.(type) {
	case json.Delim:
		switch value {
		case '{':
			node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, eris.Wrapf(err, "invalid JSON near offset %d", dec.InputOffset())
				}

				key, ok := keyTok.(string)
				if !ok {
					return nil, eris.Errorf("expected object key at offset %d", dec.InputOffset())
				}

				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}

				node.Content = append(node.Content, scalar("!!str", key), item)
			}

			return node, closeDelim(dec)
		case '[':
			node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}

				node.Content = append(node.Content, item)
			}

			return node, closeDelim(dec)
		default:
			return nil, eris.Errorf("unexpected %s at offset %d", value, dec.InputOffset())
		}
	case string:
		return scalar("!!str", value), nil
	case json.Number:
		// YAML readers can't load numbers outside of the float64 and int64 range
		if strings.ContainsAny(value.String(), ".eE") {
			if _, err := value.Float64(); err != nil {
				return nil, eris.Errorf("number %s near offset %d is out of range", value, dec.InputOffset())
			}
			return scalar("!!float", value.String()), nil
		}

		if _, err := value.Int64(); err != nil {
			return nil, eris.Errorf("number %s near offset %d is out of range", value, dec.InputOffset())
		}
		return scalar("!!int", value.String()), nil
	case bool:
		if value {
			return scalar("!!bool", "true"), nil
		}
		return scalar("!!bool", "false"), nil
	case nil:
		return scalar("!!null", "null"), nil
	}

	return nil, eris.Errorf("unexpected JSON token %v", tok)
}

func closeDelim(dec *json.Decoder) error {
	_, err := dec.Token()
	if err != nil {
		return eris.Wrapf(err, "invalid JSON near offset %d", dec.InputOffset())
	}

	return nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   tag,
		Value: value,
	}
}
