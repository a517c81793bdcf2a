// Package common contains shared constants and sentinel errors used across
// offsync components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Upload result codes carried in UploadResponse rows.
const (
	CodeRecordNotFound      = "record_not_found"
	CodeRecordAlreadyExists = "record_already_exists"
	CodeUnknown             = "unknown"
)
