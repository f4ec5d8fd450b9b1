// Package device implements the provisioning orchestration core: the
// state machines and protocol adapters that drive one hardware unit
// through firmware flashing, power transitions, boot supervision,
// ownership-transfer gating, and post-change verification.
//
// Each Controller owns one physical unit and is driven by a single
// logical thread; multiple controllers run concurrently with no shared
// mutable state. Public operations return a boolean outcome plus an
// error that is non-nil only for configuration faults; operational
// failures (transport, timeout, remote rejection) are always the
// boolean.
package device
