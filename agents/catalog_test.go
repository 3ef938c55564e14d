package agents

import (
	"reflect"
	"testing"
)

const sampleSpec = `{
  "models": {"orchestration": "auto"},
  "instructions": {"response": "Answer in English."},
  "tools": [
    {
      "tool_spec": {
        "type": "cortex_analyst_text_to_sql",
        "name": "Sales Analyst"
      }
    },
    {
      "tool_spec": {
        "type": "cortex_search",
        "name": "Docs Search"
      }
    },
    {
      "tool_spec": {
        "type": "generic",
        "name": "Web Scraper"
      }
    }
  ],
  "tool_resources": {
    "Sales Analyst": {
      "semantic_view": "ANALYTICS.PUBLIC.SALES_VIEW",
      "execution_environment": {
        "type": "warehouse",
        "warehouse": "ANALYST_WH"
      }
    },
    "Docs Search": {
      "name": "DOCS_DB.PUBLIC.DOCS_SEARCH_SVC",
      "max_results": 5
    }
  }
}`

func TestParseSpec(t *testing.T) {
	analyst, search := ParseSpec(sampleSpec)

	wantAnalyst := []AnalystTool{{
		Name:         "Sales Analyst",
		Warehouse:    "ANALYST_WH",
		SemanticView: "ANALYTICS.PUBLIC.SALES_VIEW",
	}}
	if !reflect.DeepEqual(analyst, wantAnalyst) {
		t.Errorf("analyst tools = %+v, want %+v", analyst, wantAnalyst)
	}

	wantSearch := []SearchService{{
		ToolName: "Docs Search",
		Service:  "DOCS_SEARCH_SVC",
		FullName: "DOCS_DB.PUBLIC.DOCS_SEARCH_SVC",
	}}
	if !reflect.DeepEqual(search, wantSearch) {
		t.Errorf("search services = %+v, want %+v", search, wantSearch)
	}
}

func TestParseSpecMissingResources(t *testing.T) {
	spec := `{
	  "tools": [
	    {"tool_spec": {"type": "cortex_analyst_text_to_sql", "name": "Bare Analyst"}},
	    {"tool_spec": {"type": "cortex_search", "name": "Bare Search"}}
	  ]
	}`
	analyst, search := ParseSpec(spec)

	if len(analyst) != 1 {
		t.Fatalf("got %d analyst tools, want 1", len(analyst))
	}
	if analyst[0].Warehouse != "Not specified" || analyst[0].SemanticView != "Not specified" {
		t.Errorf("missing resources not defaulted: %+v", analyst[0])
	}

	if len(search) != 1 {
		t.Fatalf("got %d search services, want 1", len(search))
	}
	// Without a resource entry the tool name stands in for the service.
	if search[0].Service != "Bare Search" || search[0].FullName != "Bare Search" {
		t.Errorf("search fallback = %+v", search[0])
	}
}

func TestParseSpecWildcardToolNames(t *testing.T) {
	// Tool names are literal keys; "*" and "?" in them must not match
	// other resource entries. The decoy entries come first so a pattern
	// lookup would pick them up.
	spec := `{
	  "tools": [
	    {"tool_spec": {"type": "cortex_search", "name": "Docs v?"}},
	    {"tool_spec": {"type": "cortex_search", "name": "All * Search"}}
	  ],
	  "tool_resources": {
	    "Docs v1": {"name": "DB.PUBLIC.WRONG_SVC"},
	    "Docs v?": {"name": "DB.PUBLIC.VERSIONED_SVC"},
	    "All Internal Search": {"name": "DB.PUBLIC.DECOY_SVC"},
	    "All * Search": {"name": "DB.PUBLIC.STARRED_SVC"}
	  }
	}`
	_, search := ParseSpec(spec)

	want := []SearchService{
		{ToolName: "Docs v?", Service: "VERSIONED_SVC", FullName: "DB.PUBLIC.VERSIONED_SVC"},
		{ToolName: "All * Search", Service: "STARRED_SVC", FullName: "DB.PUBLIC.STARRED_SVC"},
	}
	if !reflect.DeepEqual(search, want) {
		t.Errorf("search services = %+v, want %+v", search, want)
	}
}

func TestParseSpecInvalidJSON(t *testing.T) {
	analyst, search := ParseSpec("not json at all")
	if len(analyst) != 0 || len(search) != 0 {
		t.Errorf("invalid spec produced tools: %v %v", analyst, search)
	}
	analyst, search = ParseSpec("")
	if len(analyst) != 0 || len(search) != 0 {
		t.Errorf("empty spec produced tools: %v %v", analyst, search)
	}
}

func TestServiceAgents(t *testing.T) {
	catalog := &Catalog{Agents: []Agent{
		{
			Name: "agent_b",
			SearchServices: []SearchService{
				{ToolName: "s1", Service: "DOCS_SVC"},
				{ToolName: "s2", Service: "TICKETS_SVC"},
			},
		},
		{
			Name: "agent_a",
			SearchServices: []SearchService{
				{ToolName: "s1", Service: "DOCS_SVC"},
				{ToolName: "s1-dup", Service: "DOCS_SVC"},
			},
		},
	}}

	services, byService := catalog.ServiceAgents()

	if want := []string{"DOCS_SVC", "TICKETS_SVC"}; !reflect.DeepEqual(services, want) {
		t.Errorf("services = %v, want %v", services, want)
	}
	if want := []string{"agent_a", "agent_b"}; !reflect.DeepEqual(byService["DOCS_SVC"], want) {
		t.Errorf("DOCS_SVC agents = %v, want %v", byService["DOCS_SVC"], want)
	}

	if !catalog.UsesService("TICKETS_SVC") {
		t.Error("UsesService(TICKETS_SVC) = false")
	}
	if catalog.UsesService("OTHER_SVC") {
		t.Error("UsesService(OTHER_SVC) = true")
	}
}
