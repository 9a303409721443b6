package stdout

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWritePassthrough(t *testing.T) {
	var buf bytes.Buffer
	if err := New(&buf).Write(context.Background(), "-", strings.NewReader("declare module 'a' {}\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "declare module 'a' {}\n" {
		t.Fatalf("unexpected %q", buf.String())
	}
}

func TestWriteKeepsPartialOnError(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("boom")
	r := io.MultiReader(strings.NewReader("head"), &failReader{err: boom})
	if err := New(&buf).Write(context.Background(), "-", r); !errors.Is(err, boom) {
		t.Fatalf("expect boom, got %v", err)
	}
	if buf.String() != "head" {
		t.Fatalf("已写部分应保留, got %q", buf.String())
	}
}

func TestWriteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(io.Discard).Write(ctx, "-", strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect canceled, got %v", err)
	}
}

type failReader struct{ err error }

func (f *failReader) Read([]byte) (int, error) { return 0, f.err }
