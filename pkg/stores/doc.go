// Package stores persists the provisioning audit log: one run per
// device provisioning session and one row per public operation executed
// within it.
package stores
