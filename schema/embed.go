package schema

import _ "embed"

//go:embed release-composer-config.schema.json
var ConfigSchema []byte

//go:embed build-matrix.schema.json
var MatrixSchema []byte
