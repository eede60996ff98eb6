// Package client is the reference client of the token vending machine.
//
// HTTPClient performs the three vending operations the way a device does:
// it derives the salted password hash from username, app name and server
// host, signs timestamps with HMAC-SHA256 and decrypts the AES-wrapped
// responses. Non-200 replies come back as *StatusError values that match
// the package sentinels (ErrUnauthorized, ErrStaleTimestamp, ...) with
// errors.Is. Transport failures match ErrUnavailable.
package client
