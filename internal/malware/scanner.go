// Package malware implements the scan gate of the Intake Gateway (§4.1 step
// 4): stream file content to an external clamd-compatible daemon over its
// INSTREAM protocol. The daemon being unreachable is a normal, handled
// outcome, not a scan failure — tenants opt into treating it as fatal via
// TenantConfig.RequireMalwareScan.
package malware

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"ingestpipe/internal/config"
)

// Result is the outcome of scanning one file.
type Result struct {
	// Status is "clean", "infected", or "skipped" (daemon unreachable).
	Status string
	// Signature names the matched threat when Status is "infected".
	Signature string
}

const (
	StatusClean     = "clean"
	StatusInfected  = "infected"
	StatusSkipped   = "skipped"
	chunkSize       = 8192
	maxResponseSize = 4096
)

// Scanner talks to a clamd-compatible daemon over TCP.
type Scanner struct {
	addr    string
	timeout time.Duration
}

// NewScanner returns a Scanner, or nil when no daemon address is
// configured — every Scan then reports StatusSkipped.
func NewScanner(cfg config.MalwareScannerConfig) *Scanner {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	return &Scanner{addr: cfg.Addr, timeout: cfg.Timeout}
}

// Scan streams content to the daemon via the INSTREAM command: each chunk
// is prefixed with its 4-byte big-endian length, terminated by a
// zero-length chunk. A connection failure is reported as StatusSkipped
// with the underlying error, not treated as "infected".
func (s *Scanner) Scan(content []byte) (Result, error) {
	if s == nil {
		return Result{Status: StatusSkipped}, nil
	}

	conn, err := net.DialTimeout("tcp", s.addr, s.timeout)
	if err != nil {
		return Result{Status: StatusSkipped}, fmt.Errorf("connect malware scanner: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return Result{Status: StatusSkipped}, fmt.Errorf("send instream command: %w", err)
	}

	lenBuf := make([]byte, 4)
	for offset := 0; offset < len(content); offset += chunkSize {
		end := offset + chunkSize
		if end > len(content) {
			end = len(content)
		}
		chunk := content[offset:end]
		binary.BigEndian.PutUint32(lenBuf, uint32(len(chunk)))
		if _, err := conn.Write(lenBuf); err != nil {
			return Result{Status: StatusSkipped}, fmt.Errorf("send chunk length: %w", err)
		}
		if _, err := conn.Write(chunk); err != nil {
			return Result{Status: StatusSkipped}, fmt.Errorf("send chunk data: %w", err)
		}
	}
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		return Result{Status: StatusSkipped}, fmt.Errorf("send terminator: %w", err)
	}

	resp, err := io.ReadAll(io.LimitReader(conn, maxResponseSize))
	if err != nil {
		return Result{Status: StatusSkipped}, fmt.Errorf("read scanner response: %w", err)
	}

	line := strings.TrimSpace(string(resp))
	if strings.HasSuffix(line, "OK") {
		return Result{Status: StatusClean}, nil
	}
	return Result{Status: StatusInfected, Signature: line}, nil
}
