package version

// Current is the released version, without a "v" prefix.
const Current = "0.1.0"

// Commit is stamped at build time with -ldflags "-X .../internal/version.Commit=<sha>".
var Commit = "unknown"
