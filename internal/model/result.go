package model

// QueryResult is the outcome of one start→goal resolution.
type QueryResult struct {
	SchemaVersion int      `yaml:"schema_version" json:"schema_version"`
	FileType      string   `yaml:"file_type" json:"file_type"`
	QueryID       string   `yaml:"query_id" json:"query_id"`
	Start         TaskID   `yaml:"start" json:"start"`
	Goal          TaskID   `yaml:"goal" json:"goal"`
	Path          []TaskID `yaml:"path" json:"path"`
	RouteFound    bool     `yaml:"route_found" json:"route_found"`
	Closure       []TaskID `yaml:"closure" json:"closure"`
	TaskCount     int      `yaml:"task_count" json:"task_count"`
	EdgeCount     int      `yaml:"edge_count" json:"edge_count"`
	ResolvedAt    string   `yaml:"resolved_at" json:"resolved_at"`
}

const (
	QueryResultSchemaVersion = 1
	QueryResultFileType      = "query_result"
)
