// Package report renders query results and writes them out atomically.
package report

import (
	"encoding/json"
	"fmt"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/taskpath/internal/model"
)

// Render formats result for output. Text output is the path joined by
// joiner followed by a newline; yaml and json carry the whole result.
func Render(result *model.QueryResult, format model.OutputFormat, joiner string) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("render: nil result")
	}
	switch format {
	case model.OutputFormatText, "":
		if joiner == "" {
			joiner = model.DefaultJoiner
		}
		return []byte(model.JoinTaskIDs(result.Path, joiner) + "\n"), nil
	case model.OutputFormatYAML:
		out, err := yamlv3.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("yaml marshal: %w", err)
		}
		return out, nil
	case model.OutputFormatJSON:
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("json marshal: %w", err)
		}
		return append(out, '\n'), nil
	default:
		return nil, &model.ConfigurationError{Source: "output.format", Msg: fmt.Sprintf("unsupported format %q", format)}
	}
}
