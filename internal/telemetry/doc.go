// Package telemetry publishes schedule changes of a running node to an
// external collector, by default a socket.io server.
package telemetry
