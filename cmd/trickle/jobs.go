package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/franksops/trickle/engine"
)

// job is one transfer requested on the command line or in a batch file.
type job struct {
	Kind       engine.Kind
	Host       string
	Port       int
	Path       string
	LocalPath  string
	Credential string
}

// parseJob parses "put|get <host:port> <remote-path> <local-path> [credential]".
func parseJob(fields []string) (job, error) {
	if len(fields) < 4 || len(fields) > 5 {
		return job{}, fmt.Errorf("want put|get <host:port> <remote-path> <local-path> [credential], got %d fields", len(fields))
	}

	var j job
	switch strings.ToLower(fields[0]) {
	case "put":
		j.Kind = engine.KindUpload
	case "get":
		j.Kind = engine.KindDownload
	default:
		return job{}, fmt.Errorf("unknown command %q", fields[0])
	}

	host, portStr, err := net.SplitHostPort(fields[1])
	if err != nil {
		return job{}, fmt.Errorf("parse endpoint %q: %w", fields[1], err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return job{}, fmt.Errorf("parse endpoint %q: invalid port", fields[1])
	}
	j.Host, j.Port = host, port

	j.Path = fields[2]
	if !strings.HasPrefix(j.Path, "/") {
		j.Path = "/" + j.Path
	}
	j.LocalPath = fields[3]
	if len(fields) == 5 {
		j.Credential = fields[4]
	}
	return j, nil
}

// parseBatch reads one job per line. Blank lines and lines starting with '#'
// are skipped. defaultCredential applies to lines without one.
func parseBatch(r io.Reader, defaultCredential string) ([]job, error) {
	var jobs []job
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		j, err := parseJob(strings.Fields(text))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if j.Credential == "" {
			j.Credential = defaultCredential
		}
		jobs = append(jobs, j)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return jobs, nil
}

func (j job) enqueue(e *engine.Engine) uint64 {
	if j.Kind == engine.KindUpload {
		return e.EnqueueUpload(j.Credential, j.Host, j.Port, j.Path, j.LocalPath)
	}
	return e.EnqueueDownload(j.Credential, j.Host, j.Port, j.Path, j.LocalPath)
}
