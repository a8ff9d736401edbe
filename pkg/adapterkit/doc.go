/*
Package adapterkit builds data-source adapters that expose a common set of
capabilities (tag search, snapshot and historical reads, event messages,
vendor extensions) through a capability-discovery model.

# Overview

An Adapter owns a feature registry. Implementations register under
namespaced feature keys, and callers probe for the capabilities they need:

	a, err := adapterkit.New(adapterkit.Descriptor{ID: "plant-1", Name: "Plant historian"},
	    adapterkit.WithProvider(source),
	)
	if err != nil {
	    log.Fatal(err)
	}
	if err := a.Start(ctx); err != nil {
	    log.Fatal(err)
	}
	defer a.Stop(context.Background())

	if reader, ok := adapterkit.Feature[features.ReadSnapshotTagValues](a, features.KeyReadSnapshotTagValues); ok {
	    values, err := reader.ReadSnapshotTagValues(ctx, types.ReadSnapshotTagValuesRequest{Tags: []string{"T-101"}})
	    // ...
	}

# Packages

  - features: feature keys, contracts and the registry
  - push: subscription engines for snapshot values and event messages
  - aggregation: bucketed aggregation, interpolation and plot thinning over raw history
  - extensions: typed handlers behind ID-addressed, serialized-payload operations
  - eventstore: bounded event message storage with cursor reads
  - stream: the bounded, completable result stream every query returns
  - bridge/redis: relays event messages between adapters over Redis
  - sim: a simulated adapter exercising every feature

# Lifecycle

Start registers a built-in health check (unless the adapter supplied its own)
and runs start hooks. Stop runs stop hooks in reverse and disposes every
registered feature once, even when one object serves several keys.
*/
package adapterkit
