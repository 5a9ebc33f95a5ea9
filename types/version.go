package types

// Version is the canonical project version, shared by the CLI and the event log format.
const Version = "0.3.0"
