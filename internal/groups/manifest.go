package groups

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
	"sigs.k8s.io/yaml"
)

// manifestSchema constrains group manifest files before they are unmarshaled.
const manifestSchema = `{
  "type": "object",
  "required": ["groups"],
  "properties": {
    "groups": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "endpoints"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "endpoints": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["name", "path"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "method": {"type": "string", "enum": ["GET", "POST", "PUT", "DELETE"]},
                "path": {"type": "string", "pattern": "^/"},
                "critical": {"type": "boolean"},
                "latencyBudgetMs": {"type": "integer", "minimum": 1},
                "schema": {"type": "object"}
              }
            }
          }
        }
      }
    }
  }
}`

type manifest struct {
	Groups []Group `json:"groups"`
}

// LoadManifest reads a YAML group manifest, validates it against the
// manifest schema, and returns the resulting registry.
func LoadManifest(path string) (*Registry, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read group manifest: %w", err)
	}

	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse group manifest: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(manifestSchema),
		gojsonschema.NewBytesLoader(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("manifest schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("invalid group manifest: %v", msgs)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode group manifest: %w", err)
	}
	return NewRegistry(m.Groups)
}
