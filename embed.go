package podcheck

import "embed"

//go:embed web/*
var WebFiles embed.FS

//go:embed schema.sql
var SchemaSQL []byte
