// pkg/registry/schema.go
package registry

// TemplateRegistry is the on-disk set of message templates keyed by
// notification type and language.
type TemplateRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Templates   []Template `json:"templates"`
}

type Template struct {
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Language  string   `json:"language"`
	Subject   string   `json:"subject,omitempty"`
	Body      string   `json:"body"`
	Variables []string `json:"variables,omitempty"`
}
