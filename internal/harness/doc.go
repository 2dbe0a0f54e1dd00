// Package harness runs conformance scenarios against the adapter.
//
// A scenario seeds an in-memory store, issues a sequence of verb calls and
// checks both the outcome of each call and the store round-trips it caused.
// Every run is deterministic: documents inserted without an _id receive
// sequential ObjectIDs (000000000000000000000001, ...), so traces can be
// compared byte for byte against golden files.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	model: model.yaml          # optional, relative to the scenario file
//	policy: operators          # optional identifier coercion policy
//	seed:
//	  categories:
//	    - { _id: { $oid: "5f1d7c2b9a1e4b3c8d7e6f50" }, name: Beverages }
//	steps:
//	  - verb: query
//	    collection: products
//	    query: { filter: { categoryId: "5f1d7c2b9a1e4b3c8d7e6f50" }, expand: [Category] }
//	    expect:
//	      outcome: ok
//	      count: 2
//	  - verb: update
//	    collection: products
//	    filter: { categoryId: "5f1d7c2b9a1e4b3c8d7e6f50" }
//	    update: { $set: { price: 1 } }
//	    expect:
//	      outcome: rejected
//	      error: update not successful
//	assertions:
//	  - type: store_ops
//	    step: 2
//	    ops: [count]
//	  - type: final_state
//	    collection: products
//	    where: { price: 1 }
//	    count: 0
//
// Documents, filters and descriptors are MongoDB Extended JSON written as
// YAML; key order is preserved, so sort specifications keep their meaning.
//
// # Assertion Types
//
//   - store_ops: the exact round-trips of one step, or of the whole run
//   - op_count: how many times one round-trip was issued
//   - final_state: how many documents match a filter after the run, and
//     optionally a filter every one of them must also satisfy
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/expand.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
