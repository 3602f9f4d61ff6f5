package resources

import "embed"

//go:embed migrations/*.sql questions.yml
var FS embed.FS
