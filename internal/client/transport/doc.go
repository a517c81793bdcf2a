// Package transport is the client side of offsync.v1.SyncService.
//
// # Overview
//
// Client is the contract the sync loop depends on: Ping, Download,
// Upload and Snapshot. GRPCClient implements it over a single gRPC
// connection, attaches the configured access token to every call through
// a unary interceptor and encodes sync payloads as JSON inside
// google.protobuf.BytesValue.
//
// # Error Handling
//
// gRPC status codes are mapped to sentinel errors that callers can match
// with errors.Is: ErrUnavailable for connectivity failures, and
// common.ErrorUnauthorized for rejected or missing tokens. Any other
// failure is wrapped as "rpc error".
package transport
