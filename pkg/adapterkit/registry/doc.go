// Package registry provides a generic thread-safe map used for the feature
// table, the extension operation tables and the data function table.
//
// Add never overwrites: a second Add for the same key returns false and
// leaves the first value in place. Use Set when replacement is intended.
//
//	ops := registry.New[string, Handler]()
//	if !ops.Add("asc:extensions/acme/ping/invoke/ping/", h) {
//	    // already bound
//	}
package registry
