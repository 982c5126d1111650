package config

import (
	"testing"
	"time"
)

func TestQueueConfigParsing(t *testing.T) {
	yaml := `
Queue:
  NTasks: 42
  MaxFailures: 3
Loops:
  QueueTasks:
    Interval: 30s
    MinDelay: 5s
  OrphanGrace: 10m
`
	conf := DefaultConfig()
	if err := Parse([]byte(yaml), &conf); err != nil {
		t.Fatal(err)
	}

	if conf.Queue.NTasks != 42 {
		t.Fatal("unexpected ntasks")
	}
	if conf.Queue.MaxFailures != 3 {
		t.Fatal("unexpected max failures")
	}
	if conf.Queue.DependencyConcurrency != 20 {
		t.Fatal("default was overwritten")
	}
	if conf.Loops.QueueTasks.Interval.D() != 30*time.Second {
		t.Fatal("unexpected interval", conf.Loops.QueueTasks.Interval.String())
	}
	if conf.Loops.OrphanGrace.D() != 10*time.Minute {
		t.Fatal("unexpected orphan grace")
	}
}

func TestRoundTrip(t *testing.T) {
	conf := DefaultConfig()
	var parsed Config
	if err := Parse(ToYaml(conf), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed.Materialization.CleanupInterval.D() != 6*time.Hour {
		t.Fatal("unexpected cleanup interval", parsed.Materialization.CleanupInterval.String())
	}
	if parsed.Server.HTTPAddress() != "http://localhost:8000" {
		t.Fatal("unexpected server address")
	}
}

func TestDurationSeconds(t *testing.T) {
	yaml := `
Loops:
  OrphanGrace: 90
  PilotTimeout: "1.5"
  LogRetention: 2h
`
	conf := DefaultConfig()
	if err := Parse([]byte(yaml), &conf); err != nil {
		t.Fatal(err)
	}
	if conf.Loops.OrphanGrace.D() != 90*time.Second {
		t.Fatal("unexpected orphan grace", conf.Loops.OrphanGrace.String())
	}
	if conf.Loops.PilotTimeout.D() != 1500*time.Millisecond {
		t.Fatal("unexpected pilot timeout", conf.Loops.PilotTimeout.String())
	}
	if conf.Loops.LogRetention.D() != 2*time.Hour {
		t.Fatal("unexpected log retention", conf.Loops.LogRetention.String())
	}

	bad := `
Loops:
  OrphanGrace: soon
`
	if err := Parse([]byte(bad), &conf); err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}
