package s3

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pithecene-io/riffle/internal/tfrecord"
	"github.com/pithecene-io/riffle/riffle"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, Config{Bucket: "b"}); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := New(NewMockS3Client(), Config{}); err == nil {
		t.Error("expected error for empty bucket")
	}
}

func TestSource_Open_MissingObject(t *testing.T) {
	src, err := New(NewMockS3Client(), Config{Bucket: "bucket"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = src.Open(context.Background(), "nope")
	if !errors.Is(err, riffle.ErrNotFound) {
		t.Fatalf("expected riffle.ErrNotFound, got: %v", err)
	}
}

func TestSource_Open_SizeAndRangedReads(t *testing.T) {
	client := NewMockS3Client()
	content := []byte("0123456789abcdef")
	client.PutObjectBytes("data/part-0", content)

	src, err := New(client, Config{Bucket: "bucket"})
	if err != nil {
		t.Fatal(err)
	}

	c, err := src.Open(context.Background(), "data/part-0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if got := c.Size(); got != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), got)
	}

	buf := make([]byte, 6)
	if _, err := c.ReadAt(buf, 10); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "abcdef" {
		t.Errorf("expected %q, got %q", "abcdef", buf)
	}

	// Each ReadAt is its own ranged GET; nothing is downloaded whole.
	if client.GetObjectCalls != 1 {
		t.Errorf("expected 1 GetObject call, got %d", client.GetObjectCalls)
	}
}

func TestSource_PrefixIsApplied(t *testing.T) {
	client := NewMockS3Client()
	client.PutObjectBytes("datasets/train/shard-0", []byte("payload"))

	src, err := New(client, Config{Bucket: "bucket", Prefix: "datasets/train"})
	if err != nil {
		t.Fatal(err)
	}

	c, err := src.Open(context.Background(), "shard-0")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if got := c.Size(); got != int64(len("payload")) {
		t.Errorf("expected size %d, got %d", len("payload"), got)
	}
}

func TestSource_ValidateKey(t *testing.T) {
	src, err := New(NewMockS3Client(), Config{Bucket: "bucket"})
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", ".", "..", "../escape", "/"} {
		if _, err := src.Open(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got: %v", key, err)
		}
	}
}

func TestSource_EndToEndIndexAndRead(t *testing.T) {
	client := NewMockS3Client()

	var shard0, shard1 []byte
	shard0 = tfrecord.AppendFrame(shard0, []byte("r0"))
	shard0 = tfrecord.AppendFrame(shard0, []byte("r1"))
	shard1 = tfrecord.AppendFrame(shard1, []byte("r2"))
	client.PutObjectBytes("shard-0", shard0)
	client.PutObjectBytes("shard-1", shard1)

	src, err := New(client, Config{Bucket: "bucket"})
	if err != nil {
		t.Fatal(err)
	}

	ds, err := riffle.Open(context.Background(), []string{"shard-0", "shard-1"},
		riffle.WithSource(src), riffle.WithMaxOpenFiles(1))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ds.Close() }()

	if got := ds.NumRecords(); got != 3 {
		t.Fatalf("expected 3 records, got %d", got)
	}

	want := [][]byte{[]byte("r0"), []byte("r1"), []byte("r2")}
	for i, w := range want {
		data, ok, err := ds.GetBytes(context.Background(), i)
		if err != nil || !ok {
			t.Fatalf("record %d: ok=%v err=%v", i, ok, err)
		}
		if !bytes.Equal(data, w) {
			t.Errorf("record %d: expected %q, got %q", i, w, data)
		}
	}
}
