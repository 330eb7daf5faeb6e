// Package common contains shared constants and sentinel errors used across
// the token service components.
package common

// AuthTokenHeaderName is the HTTP header carrying a presented user token.
const AuthTokenHeaderName = "X-Auth-Token"

// AdminKeyHeaderName is the HTTP header carrying the administrative key.
const AdminKeyHeaderName = "X-Admin-Key"

// TokenValueBytes is the number of random bytes behind every issued token
// value. Hex encoding doubles it, so values are 64 characters long.
const TokenValueBytes = 32

// MaxTokenValueLength mirrors the varchar(255) width of user_tokens.token.
const MaxTokenValueLength = 255

// MaxTokenNameLength mirrors the varchar(255) width of user_tokens.name.
const MaxTokenNameLength = 255
