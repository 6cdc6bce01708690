// Package bindings holds the binding strategy registry and the builtin
// strategies that wire components to each other's capabilities.
//
// Strategy lookup is first-match over registration order. That is a
// deliberate simplicity trade-off: there is no priority system, so
// registration order is stable, documented and test-covered. The
// registry also maintains a compatibility matrix (source type to
// capability patterns) so a failed lookup can tell the manifest author
// which capabilities the source type can bind, not just that the
// requested one cannot.
package bindings
