/*
Package linkaddr provides the link-layer address used to identify neighbors
in the TSCH network, along with its canonical textual form and the hash
primitive the grouped scheduler buckets addresses with.

The canonical format is eight colon-separated hex octets,
e.g. `00:12:74:01:00:01:01:01`. A short two-octet form (`01:01`) is also
accepted and fills the two least significant octets.

The all-zero address is the null address: it means "no neighbor" and never
belongs to a group.
*/
package linkaddr
