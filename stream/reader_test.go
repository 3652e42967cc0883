package stream

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestReaderFromFragmentsConcatenatesInOrder(t *testing.T) {
	chunks := [][]byte{[]byte("ab"), []byte("cd"), []byte("ef")}
	r := ReaderFromFragments(context.Background(), func(ctx context.Context, yield func([]byte) error) error {
		for _, c := range chunks {
			if err := yield(c); err != nil {
				return err
			}
		}
		return nil
	})
	defer r.Close()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
}

func TestReaderFromFragmentsPropagatesLoadError(t *testing.T) {
	boom := errors.New("boom")
	r := ReaderFromFragments(context.Background(), func(ctx context.Context, yield func([]byte) error) error {
		if err := yield([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	defer r.Close()

	_, err := io.ReadAll(r)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestFragmentReaderTracksBytesRead(t *testing.T) {
	r := ReaderFromFragments(context.Background(), func(ctx context.Context, yield func([]byte) error) error {
		return yield([]byte("hello"))
	})
	defer r.Close()

	fr := r.(*fragmentReader)
	buf := make([]byte, 3)
	n, err := fr.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if fr.BytesRead() != int64(n) {
		t.Fatalf("BytesRead() = %d, want %d", fr.BytesRead(), n)
	}
}
