package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"evmbridge/integrations/audit"
	"evmbridge/integrations/exports"
	"evmbridge/rpc"
)

// exportAudit fetches recent audit records and writes them as CSV or JSONL.
// It returns the SHA-256 digest of the written bytes.
func exportAudit(ctx context.Context, c rpcCaller, format, eventType string, limit int, path string) (string, error) {
	var records []audit.Record
	if err := c.call(ctx, "bridge_auditLog", rpc.AuditLogParams{Type: eventType, Limit: limit}, &records); err != nil {
		return "", err
	}
	var (
		data   []byte
		digest string
		err    error
	)
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		data, digest, err = exports.AuditCSV(records)
	case "jsonl", "":
		data, digest, err = exports.AuditJSONL(records)
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}
	if path == "" || path == "-" {
		_, err = os.Stdout.Write(data)
		return digest, err
	}
	return digest, os.WriteFile(path, data, 0o644)
}
