// Package types defines the core data types of the episodic knowledge graph.
//
// This package contains the fundamental types used throughout episodic:
//   - Entity: a resolved person, product, organization, event, location or concept
//   - Relationship: a directed, typed, confidence-scored edge between two entities
//   - Episode: one immutable unit of ingested text and its provenance
//   - Properties: an ordered map of tagged scalar values
//
// # Properties
//
// Entity properties and episode metadata are restricted to four scalar
// kinds (string, number, bool, timestamp). Values are built with the typed
// constructors or converted from plain Go values:
//
//	props, err := types.PropertiesFromMap(map[string]any{"price": 12.5})
//	props.Set("in_stock", types.BoolValue(true))
//
// Properties.Validate is called by every graph driver before a write.
//
// # Episode states
//
// EpisodeState enumerates the pipeline steps an episode moves through.
// Only forward transitions and drops to partially_completed are allowed.
package types
