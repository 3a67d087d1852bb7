// Package model defines the core domain models used throughout the application:
// obligations, calendar windows, period records and the transactions matched
// against them.
package model
