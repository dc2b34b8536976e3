// Package migrations embeds the schema for each store driver.
package migrations

import "embed"

// FS holds one directory of ordered .sql files per driver: postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
