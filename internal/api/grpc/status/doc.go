// Package status implements the gRPC status endpoint of home-guard.
//
// The service is described by hand with well-known protobuf types, so no
// generated code is needed: GetStatus takes google.protobuf.Empty and returns
// the sensor snapshot as a google.protobuf.Struct. The standard gRPC health
// service is registered next to it, with one entry per monitor.
package status
