// Package appfs embeds the files shipped with the binaries.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS
