package main

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alexei-niemeyer/imapsync/internal/endpoint"
)

func TestSyncFailsWhenDestinationUnreachable(t *testing.T) {
	srcMem := endpoint.NewMemory()
	srcMem.AddFolder("INBOX", endpoint.Message{Raw: rawTestMsg("<abc@x>")})

	orig := connectFn
	connectFn = func(host string, port int, user, pass string, startTLS bool) (endpoint.Session, error) {
		if host == "src.example.org" {
			return srcMem, nil
		}
		return nil, errors.New("dial tcp: connection refused")
	}
	defer func() { connectFn = orig }()

	cmd := newSyncCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"--src-host", "src.example.org", "--src-user", "u", "--src-pass", "p",
		"--dst-host", "dst.example.org", "--dst-user", "u", "--dst-pass", "p",
		"--no-tui",
	})

	err := cmd.Execute()
	assert.Error(t, err, "a lost destination must fail the whole run")
	assert.Contains(t, err.Error(), "connect destination")
	assert.Equal(t, 0, srcMem.FolderCalls, "no listing may be attempted")
	assert.True(t, srcMem.Closed(), "the source session is closed on the failure path")
}

func TestSyncFailsWhenSourceUnreachable(t *testing.T) {
	orig := connectFn
	connectFn = func(host string, port int, user, pass string, startTLS bool) (endpoint.Session, error) {
		return nil, errors.New("dial tcp: no route to host")
	}
	defer func() { connectFn = orig }()

	cmd := newSyncCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"--src-host", "src.example.org", "--src-user", "u", "--src-pass", "p",
		"--dst-host", "dst.example.org", "--dst-user", "u", "--dst-pass", "p",
		"--no-tui",
	})

	err := cmd.Execute()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connect source")
}

func TestSyncCompletesWithExitZeroDespiteFolderFailures(t *testing.T) {
	srcMem := endpoint.NewMemory()
	srcMem.AddFolder("Bad", endpoint.Message{Raw: rawTestMsg("<bad@x>")})
	srcMem.SelectErrs = map[string]error{"Bad": errors.New("select: permission denied")}
	dstMem := endpoint.NewMemory()
	dstMem.AddFolder("Bad")

	orig := connectFn
	connectFn = func(host string, port int, user, pass string, startTLS bool) (endpoint.Session, error) {
		if host == "src.example.org" {
			return srcMem, nil
		}
		return dstMem, nil
	}
	defer func() { connectFn = orig }()

	cmd := newSyncCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"--src-host", "src.example.org", "--src-user", "u", "--src-pass", "p",
		"--dst-host", "dst.example.org", "--dst-user", "u", "--dst-pass", "p",
		"--no-tui",
	})

	err := cmd.Execute()
	assert.NoError(t, err, "per-folder failures do not fail the run")
	assert.True(t, srcMem.Closed())
	assert.True(t, dstMem.Closed())
}

func rawTestMsg(id string) []byte {
	return []byte("Message-ID: " + id + "\r\nSubject: hi\r\n\r\nbody\r\n")
}
