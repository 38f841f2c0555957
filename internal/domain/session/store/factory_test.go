package store

import (
	"testing"
)

func TestFactoryDefaultsToMemory(t *testing.T) {
	s, err := New(Config{}, Dependencies{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := s.(*memoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestFactorySQLiteRequiresDB(t *testing.T) {
	if _, err := New(Config{Driver: DriverSQLite}, Dependencies{}); err == nil {
		t.Fatalf("expected error without database handle")
	}
}

func TestFactoryUnknownDriver(t *testing.T) {
	if _, err := New(Config{Driver: "etcd"}, Dependencies{}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
