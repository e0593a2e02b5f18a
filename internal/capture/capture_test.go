package capture

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestAcquireRelease(t *testing.T) {
	var real bytes.Buffer
	s := NewStream(&real)

	c := s.Acquire()
	fmt.Fprint(s, "captured")
	if got := c.Release(); got != "captured" {
		t.Errorf("Release() = %q, want %q", got, "captured")
	}
	if real.Len() != 0 {
		t.Errorf("captured text leaked to the real target: %q", real.String())
	}

	fmt.Fprint(s, "after")
	if real.String() != "after" {
		t.Errorf("stream not restored, real target got %q", real.String())
	}
}

func TestReleaseIdempotent(t *testing.T) {
	var real bytes.Buffer
	s := NewStream(&real)

	c := s.Acquire()
	fmt.Fprint(s, "once")
	first := c.Release()
	second := c.Release()
	if first != second {
		t.Errorf("second Release() = %q, want %q", second, first)
	}
}

func TestRestoredAfterFailure(t *testing.T) {
	var real bytes.Buffer
	s := NewStream(&real)

	failing := func() (err error) {
		c := s.Acquire()
		defer c.Release()
		fmt.Fprint(s, "partial")
		return errors.New("boom")
	}
	if err := failing(); err == nil {
		t.Fatal("expected error")
	}

	fmt.Fprint(s, "visible")
	if real.String() != "visible" {
		t.Errorf("real target got %q, want %q", real.String(), "visible")
	}
}

func TestRestoredAfterPanic(t *testing.T) {
	var real bytes.Buffer
	s := NewStream(&real)

	func() {
		defer func() { _ = recover() }()
		c := s.Acquire()
		defer c.Release()
		panic("interpreter crashed")
	}()

	fmt.Fprint(s, "visible")
	if real.String() != "visible" {
		t.Errorf("real target got %q, want %q", real.String(), "visible")
	}
}

func TestLiveWriters(t *testing.T) {
	var real, live bytes.Buffer
	s := NewStream(&real)

	c := s.Acquire(&live)
	fmt.Fprintln(s, "line")
	out := c.Release()

	if out != "line\n" || live.String() != "line\n" {
		t.Errorf("buffer=%q live=%q, want both %q", out, live.String(), "line\n")
	}
	if real.Len() != 0 {
		t.Errorf("real target got %q", real.String())
	}
}
