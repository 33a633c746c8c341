package main

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/alexei-niemeyer/imapsync/internal/endpoint"
	"github.com/alexei-niemeyer/imapsync/internal/syncer"
)

func TestFinishWithoutUIWaitsForStartedRun(t *testing.T) {
	// A nil worker would panic if the guard restarted the run.
	m := newModel(nil, func() {})
	m.started.Store(true)
	want := &syncer.Outcome{Copied: 3}
	m.result <- want

	got := m.finishWithoutUI()
	assert.Same(t, want, got)
}

func TestFinishWithoutUIRunsFreshWhenNeverStarted(t *testing.T) {
	src := endpoint.NewMemory()
	src.AddFolder("INBOX", endpoint.Message{Raw: rawTestMsg("<abc@x>")})
	dst := endpoint.NewMemory()
	dst.AddFolder("INBOX")

	log := logrus.New()
	log.SetOutput(io.Discard)
	worker := syncer.New(src, dst, log, syncer.Options{})
	m := newModel(worker, func() {})

	out := m.finishWithoutUI()
	if assert.NotNil(t, out) {
		assert.Equal(t, 1, out.Copied)
	}
}
