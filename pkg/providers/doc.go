// Package providers ships the builtin resource provisioners: storage
// buckets, messaging queues and compute services. Each type pairs a
// factory.Creator (owning the type's safe layer-1 fallbacks) with a
// core.Provisioner that validates the resolved configuration,
// synthesizes an artifact handle and publishes the type's capability
// map.
//
// The builtin provisioners are in-process: synthesis produces
// deterministic artifact handles and capability values without talking
// to a deployment target. Swapping in real cloud-backed provisioners
// is a matter of registering different creators.
package providers
