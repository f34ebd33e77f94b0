package main

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/snarg/podcheck/internal/moderation"
)

func TestServedModerator(t *testing.T) {
	engine := moderation.NewEngine(moderation.EngineOptions{Log: zerolog.Nop()})
	assert.Same(t, engine, servedModerator(engine))

	remote := moderation.NewClient("http://127.0.0.1:8080/process-transcript", time.Second)
	assert.Nil(t, servedModerator(remote))
}
