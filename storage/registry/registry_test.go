package registry

import (
	"flag"
	"strings"
	"testing"

	"xdao.co/modelsync/storage"
	"xdao.co/modelsync/storage/testkit"
)

var closed int

func init() {
	MustRegister(Backend{
		Name:        "mem-test",
		Description: "in-memory registry for tests",
		Usage:       UsageClient | UsageServer,
		Keys:        map[string]string{"label": "free-form label"},
		Open: func(cfg map[string]string) (storage.RemoteStore, func() error, error) {
			return testkit.NewRemote(), func() error { closed++; return nil }, nil
		},
	})
	MustRegister(Backend{
		Name:  "server-only-test",
		Usage: UsageServer,
		Open: func(map[string]string) (storage.RemoteStore, func() error, error) {
			return testkit.NewRemote(), nil, nil
		},
	})
}

func TestRegister_Validation(t *testing.T) {
	if err := Register(Backend{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
	if err := Register(Backend{Name: "x", Usage: UsageClient}); err == nil {
		t.Fatalf("expected error for missing Open")
	}
	err := Register(Backend{Name: "mem-test", Usage: UsageClient, Open: func(map[string]string) (storage.RemoteStore, func() error, error) { return nil, nil, nil }})
	if err == nil || !strings.Contains(err.Error(), "already registered") {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestOpen_UsageAndKeys(t *testing.T) {
	if _, _, err := Open("nope", UsageClient, nil); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, _, err := Open("server-only-test", UsageClient, nil); err == nil {
		t.Fatalf("expected usage error")
	}
	if _, _, err := Open("mem-test", UsageClient, map[string]string{"bogus": "1"}); err == nil {
		t.Fatalf("expected unknown key error")
	}
	s, closeFn, err := Open("mem-test", UsageClient, map[string]string{"label": "a"})
	if err != nil || s == nil || closeFn == nil {
		t.Fatalf("Open: %v", err)
	}
}

func TestNames_FiltersByUsage(t *testing.T) {
	for _, n := range Names(UsageClient) {
		if n == "server-only-test" {
			t.Fatalf("server-only backend listed for client usage")
		}
	}
}

func TestRegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	v := RegisterFlags(fs, UsageClient)
	if err := fs.Parse([]string{"--mem-test-label=hello"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := v.Config("mem-test"); got["label"] != "hello" || len(got) != 1 {
		t.Fatalf("unexpected config %v", got)
	}
	if got := v.Config("missing"); len(got) != 0 {
		t.Fatalf("expected empty config, got %v", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []Config{
		{},
		{Backends: []BackendConfig{{}}},
		{Backends: []BackendConfig{{Name: "a"}, {Name: "a"}}},
		{WritePolicy: "some", Backends: []BackendConfig{{Name: "a"}}},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
	ok := Config{Backends: []BackendConfig{{Name: "a"}, {Name: "a", ID: "b"}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestConfig_OpenCombines(t *testing.T) {
	two := []BackendConfig{{Name: "mem-test", ID: "one"}, {Name: "mem-test", ID: "two"}}

	s, closeFn, err := Config{Backends: two}.Open(UsageClient)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(storage.Fallback); !ok {
		t.Fatalf("expected Fallback, got %T", s)
	}
	before := closed
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed != before+2 {
		t.Fatalf("expected both closers to run")
	}

	s, _, err = Config{WritePolicy: "all", Backends: two}.Open(UsageClient)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(storage.Replicating); !ok {
		t.Fatalf("expected Replicating, got %T", s)
	}

	s, _, err = Config{Backends: two[:1]}.Open(UsageClient)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*testkit.Remote); !ok {
		t.Fatalf("expected single backend unwrapped, got %T", s)
	}
}
