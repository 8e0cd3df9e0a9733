// Package prefs stores small scalar preferences outside the relational database,
// most importantly the db_version schema counter.
package prefs

// VersionKey is the preference key holding the schema version.
const VersionKey = "db_version"
