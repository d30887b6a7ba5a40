package engine

// Version is stored with every persisted run so a replay can tell which
// kernel recorded it.
const Version = "0.1.0"
