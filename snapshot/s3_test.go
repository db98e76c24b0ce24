package snapshot

import (
	"testing"
	"time"
)

func TestParseS3Path(t *testing.T) {
	cases := []struct {
		path, bucket, prefix string
	}{
		{"my-bucket", "my-bucket", ""},
		{"my-bucket/panels/snapshots", "my-bucket", "panels/snapshots"},
	}
	for _, c := range cases {
		bucket, prefix := ParseS3Path(c.path)
		if bucket != c.bucket || prefix != c.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", c.path, bucket, prefix, c.bucket, c.prefix)
		}
	}
}

func TestS3ConfigValidate(t *testing.T) {
	if err := (&S3Config{}).Validate(); err == nil {
		t.Fatal("expected error for missing bucket")
	}
	if err := (&S3Config{Bucket: "b"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	ts := time.Unix(0, 1700000000000000000)
	key := objectKey("panels", "p1", ts)
	want := "panels/p1/1700000000000000000.json"
	if key != want {
		t.Errorf("objectKey = %q, want %q", key, want)
	}

	key = objectKey("", "p1", ts)
	want = "p1/1700000000000000000.json"
	if key != want {
		t.Errorf("objectKey with empty prefix = %q, want %q", key, want)
	}
}
