// Package subject builds and parses the broker routing keys used by the
// channel event stream. Layout:
//
//	channel.<channelType>.message.<kind>.<companyId>.<bucket>.<connectionId>
//
// All events for one connection hash to the same bucket, which is what
// gives the per-connection ordering guarantee downstream.
package subject

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

const (
	prefix    = "channel"
	dlqPrefix = "dlq"
	segment   = "message"
)

// Meta is the routing information carried by a subject.
type Meta struct {
	Channel      string
	Kind         string
	CompanyID    string
	Bucket       int
	ConnectionID string
}

// Bucket maps a connection id onto one of n buckets. FNV-1a keeps the
// mapping stable across processes and restarts.
func Bucket(connectionID string, n int) int {
	if n <= 0 {
		n = 1
	}
	h := fnv.New32a()
	h.Write([]byte(connectionID))
	return int(h.Sum32() % uint32(n))
}

// Build returns the stream subject for an event.
func Build(channel, kind, companyID string, bucket int, connectionID string) string {
	return fmt.Sprintf("%s.%s.%s.%s.%s.%d.%s", prefix, channel, segment, kind, companyID, bucket, connectionID)
}

// DLQ returns the dead-letter subject matching a stream subject.
func DLQ(channel, kind, companyID string, bucket int, connectionID string) string {
	return dlqPrefix + "." + Build(channel, kind, companyID, bucket, connectionID)
}

// Pattern returns the binding pattern for one (kind, bucket) consumer,
// matching every channel, company and connection.
func Pattern(kind string, bucket int) string {
	return fmt.Sprintf("%s.*.%s.%s.*.%d.*", prefix, segment, kind, bucket)
}

// Parse extracts routing metadata from a stream subject.
func Parse(s string) (Meta, error) {
	parts := strings.Split(s, ".")
	if len(parts) == 8 && parts[0] == dlqPrefix {
		parts = parts[1:]
	}
	if len(parts) != 7 || parts[0] != prefix || parts[2] != segment {
		return Meta{}, fmt.Errorf("malformed subject %q", s)
	}
	bucket, err := strconv.Atoi(parts[5])
	if err != nil {
		return Meta{}, fmt.Errorf("malformed bucket in subject %q: %w", s, err)
	}
	return Meta{
		Channel:      parts[1],
		Kind:         parts[3],
		CompanyID:    parts[4],
		Bucket:       bucket,
		ConnectionID: parts[6],
	}, nil
}

// DedupID builds the broker-level deduplication id for an event.
// Republishing the same record carries the same id, so the broker (or
// the idempotent consumer) can collapse duplicates. Empty when the
// event has no provider id.
func DedupID(companyID, connectionID, remoteID string) string {
	if remoteID == "" {
		return ""
	}
	return companyID + ":" + connectionID + ":" + remoteID
}
