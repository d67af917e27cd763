// Package harness provides conformance testing for restq resources.
//
// The harness compiles a model schema, opens a fresh in-memory store,
// runs a flow of resource calls and validates the results, the published
// service events and the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: schema.cue
//	resources:
//	  - model: todo
//	    multi: [patch]
//	seed:
//	  todo:
//	    - { title: "Title", tag: "A" }
//	flow:
//	  - call: patch
//	    model: todo
//	    id: 1
//	    data: { title: "Renamed" }
//	    query: { tag: "A" }
//	    expect:
//	      result: { title: "Renamed" }
//	  - call: remove
//	    model: todo
//	    id: 9
//	    expect:
//	      error: NotFound
//	assertions:
//	  - type: trace_contains
//	    action: todo.patched
//	    data: { title: "Renamed" }
//	  - type: final_state
//	    model: todo
//	    where: { id: 1 }
//	    expect: { title: "Renamed" }
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: Verifies a call or event appears in the trace with matching data
//   - trace_order: Verifies calls and events appear in specified order
//   - trace_count: Verifies a call or event appears exactly N times
//   - final_state: Finds exactly one record and verifies expected values
//   - record_count: Verifies how many records match a filter
//
// Calls appear in the trace as "<model>.<call>", events as "<model>.<event>".
//
// # Deterministic Testing
//
// Every scenario runs against its own in-memory SQLite database with
// sequential ids for uuid and string id fields, so identical scenarios
// produce identical traces for golden snapshot comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/patch.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
