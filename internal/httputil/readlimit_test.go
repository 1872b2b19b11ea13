package httputil

import (
	"strings"
	"testing"
)

func TestReadAllWithLimitShortBody(t *testing.T) {
	body, truncated, err := ReadAllWithLimit(strings.NewReader("hello"), 100)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if truncated {
		t.Error("short body should not be truncated")
	}
	if string(body) != "hello" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestReadAllWithLimitExactFit(t *testing.T) {
	body, truncated, err := ReadAllWithLimit(strings.NewReader("12345"), 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if truncated {
		t.Error("exact fit should not count as truncated")
	}
	if string(body) != "12345" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestReadAllWithLimitTruncates(t *testing.T) {
	body, truncated, err := ReadAllWithLimit(strings.NewReader("1234567890"), 5)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !truncated {
		t.Error("expected truncation flag")
	}
	if string(body) != "12345" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestReadAllStrictRejectsOverflow(t *testing.T) {
	if _, err := ReadAllStrict(strings.NewReader("1234567890"), 5); err == nil {
		t.Error("expected error for oversized body")
	}
	body, err := ReadAllStrict(strings.NewReader("123"), 5)
	if err != nil || string(body) != "123" {
		t.Errorf("unexpected result: %q %v", body, err)
	}
}
