// Package store defines the persistence interfaces used by the services and
// the transaction helper that spans several stores.
package store
