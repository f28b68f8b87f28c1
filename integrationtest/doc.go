// Package integrationtest exercises the subscription container against
// a real MongoDB replica set, started through testcontainers.
//
// The tests are skipped in -short mode and require a working container
// runtime.
package integrationtest
