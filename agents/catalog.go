// Package agents builds an inventory of Cortex Agents and the tools they
// are configured with. The agent_spec JSON is the only authority on which
// Cortex Search services an agent can reach, so search-cost attribution
// starts here.
package agents

import (
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// AnalystTool is a cortex_analyst_text_to_sql tool configured on an agent.
type AnalystTool struct {
	Name         string `json:"name"`
	Warehouse    string `json:"warehouse"`
	SemanticView string `json:"semantic_view"`
}

// SearchService is a cortex_search tool configured on an agent. Service is
// the bare service name as it appears in the usage history; FullName keeps
// the database.schema.service qualification when present.
type SearchService struct {
	ToolName string `json:"tool_name"`
	Service  string `json:"service"`
	FullName string `json:"full_name"`
}

// Agent is one Cortex Agent with its parsed tool configuration.
type Agent struct {
	Name           string          `json:"name"`
	Owner          string          `json:"owner,omitempty"`
	Comment        string          `json:"comment,omitempty"`
	CreatedOn      time.Time       `json:"created_on,omitempty"`
	AnalystTools   []AnalystTool   `json:"analyst_tools"`
	SearchServices []SearchService `json:"search_services"`
}

// Catalog is the full agent inventory for an account.
type Catalog struct {
	Agents []Agent `json:"agents"`
}

const notSpecified = "Not specified"

// ParseSpec extracts tool configuration from an agent_spec JSON document.
// Unknown tool types are skipped; a missing or invalid document yields
// empty slices, matching the degrade-don't-fail posture of the reporting
// pipeline.
func ParseSpec(specJSON string) ([]AnalystTool, []SearchService) {
	var analyst []AnalystTool
	var search []SearchService

	spec := gjson.Parse(specJSON)
	spec.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		toolSpec := tool.Get("tool_spec")
		if !toolSpec.Exists() {
			return true
		}
		name := toolSpec.Get("name").String()
		if name == "" {
			name = "Unknown"
		}
		resource := spec.Get("tool_resources." + escapeKey(name))

		switch toolSpec.Get("type").String() {
		case "cortex_analyst_text_to_sql":
			t := AnalystTool{Name: name, Warehouse: notSpecified, SemanticView: notSpecified}
			if resource.Exists() {
				if v := resource.Get("semantic_view").String(); v != "" {
					t.SemanticView = v
				}
				env := resource.Get("execution_environment")
				if env.Get("type").String() == "warehouse" {
					if wh := env.Get("warehouse").String(); wh != "" {
						t.Warehouse = wh
					}
				}
			}
			analyst = append(analyst, t)

		case "cortex_search":
			full := resource.Get("name").String()
			if full == "" {
				full = name
			}
			search = append(search, SearchService{
				ToolName: name,
				Service:  simpleServiceName(full),
				FullName: full,
			})
		}
		return true
	})

	return analyst, search
}

// ServiceAgents returns every search service referenced by any agent and a
// service-to-agents mapping, both with stable ordering for reports.
func (c *Catalog) ServiceAgents() (services []string, byService map[string][]string) {
	byService = make(map[string][]string)
	for _, agent := range c.Agents {
		for _, svc := range agent.SearchServices {
			byService[svc.Service] = append(byService[svc.Service], agent.Name)
		}
	}
	for svc, names := range byService {
		sort.Strings(names)
		byService[svc] = dedupe(names)
		services = append(services, svc)
	}
	sort.Strings(services)
	return services, byService
}

// UsesService reports whether any agent references the given search service.
func (c *Catalog) UsesService(service string) bool {
	for _, agent := range c.Agents {
		for _, svc := range agent.SearchServices {
			if svc.Service == service {
				return true
			}
		}
	}
	return false
}

// simpleServiceName strips database.schema qualification: usage history
// reports bare service names.
func simpleServiceName(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// escapeKey escapes path separators and wildcard characters so a tool
// name is treated as a single literal object key.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
