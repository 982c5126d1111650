package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func jsonLogger() (*Logger, *bytes.Buffer) {
	l := New("foons", "basearg", 1)
	c := DefaultConfig()
	c.Formatter = "json"
	c.JSONFormat.DisableTimestamp = true
	l.Configure(c)

	var b bytes.Buffer
	l.SetOutput(&b)
	return l, &b
}

func TestLog(t *testing.T) {
	l, b := jsonLogger()
	l.Info("test")

	expect := `{"basearg":1,"level":"info","msg":"test","ns":"foons"}` + "\n"
	if b.String() != expect {
		t.Fatal("unexpected log:", b.String())
	}
}

func TestContextLog(t *testing.T) {
	l, b := jsonLogger()

	ctx := context.WithValue(context.Background(), TaskIDKey, "task-1")
	l.Info("test", ctx)

	expect := `{"basearg":1,"level":"info","msg":"test","ns":"foons","taskID":"task-1"}` + "\n"
	if b.String() != expect {
		t.Fatal("unexpected log:", b.String())
	}
}

func TestErrorFieldLog(t *testing.T) {
	l, b := jsonLogger()
	l.Error("test", errors.New("fooerr"))

	expect := `{"basearg":1,"error":"fooerr","level":"error","msg":"test","ns":"foons"}` + "\n"
	if b.String() != expect {
		t.Fatal("unexpected log:", b.String())
	}
}

func TestSubLoggerSharesOutput(t *testing.T) {
	l, b := jsonLogger()
	l.Sub("child").Info("test", "k", "v")

	expect := `{"basearg":1,"k":"v","level":"info","msg":"test","ns":"child"}` + "\n"
	if b.String() != expect {
		t.Fatal("unexpected log:", b.String())
	}
}

func TestLevelFilter(t *testing.T) {
	l, b := jsonLogger()
	l.Debug("hidden")
	if b.Len() != 0 {
		t.Fatal("debug message written at info level:", b.String())
	}
}
