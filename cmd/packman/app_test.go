package main

import (
	"reflect"
	"testing"

	"github.com/packman-project/packman/internal/config"
	"github.com/packman-project/packman/internal/plog"
	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

func testApp(remotesMap map[string]*schema.Remote, cascade []string) *app {
	return &app{Config: &config.Merged{RemotesMap: remotesMap, Remotes: cascade}}
}

func TestResolveRemoteExactMatch(t *testing.T) {
	r := &schema.Remote{Name: "project:artifactory", Type: "http"}
	a := testApp(map[string]*schema.Remote{"project:artifactory": r}, nil)

	got, err := a.resolveRemote("project:artifactory", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("expected exact match to win, got %+v", got)
	}
}

func TestResolveRemoteBareNameUnique(t *testing.T) {
	r := &schema.Remote{Name: "project:artifactory", Type: "http"}
	a := testApp(map[string]*schema.Remote{"project:artifactory": r}, nil)

	got, err := a.resolveRemote("artifactory", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Fatalf("expected bare-name match, got %+v", got)
	}
}

func TestResolveRemoteBareNameAmbiguous(t *testing.T) {
	a := testApp(map[string]*schema.Remote{
		"project:artifactory": {Name: "project:artifactory", Type: "http"},
		"user:artifactory":    {Name: "user:artifactory", Type: "http"},
	}, nil)

	_, err := a.resolveRemote("artifactory", nil)
	if err == nil {
		t.Fatal("expected an ambiguous-match error")
	}
	pe, ok := err.(*pmerrors.Error)
	if !ok || pe.Kind != pmerrors.KindRemoteAmbiguous {
		t.Fatalf("expected KindRemoteAmbiguous, got %v", err)
	}
}

func TestResolveRemoteUndefined(t *testing.T) {
	a := testApp(map[string]*schema.Remote{}, nil)

	_, err := a.resolveRemote("nowhere", nil)
	if err == nil {
		t.Fatal("expected an undefined-remote error")
	}
	pe, ok := err.(*pmerrors.Error)
	if !ok || pe.Kind != pmerrors.KindRemoteUndefined {
		t.Fatalf("expected KindRemoteUndefined, got %v", err)
	}
}

func TestResolveRemoteExtraTableWinsOverAmbiguity(t *testing.T) {
	extra := map[string]*schema.Remote{"project:artifactory": {Name: "project:artifactory", Type: "http"}}
	a := testApp(map[string]*schema.Remote{
		"user:artifactory": {Name: "user:artifactory", Type: "http"},
	}, nil)

	got, err := a.resolveRemote("project:artifactory", extra)
	if err != nil {
		t.Fatal(err)
	}
	if got != extra["project:artifactory"] {
		t.Fatalf("expected the exact extra-table match, got %+v", got)
	}
}

func TestDefaultCascade(t *testing.T) {
	a := testApp(nil, []string{"a", "b"})

	if got := a.defaultCascade([]string{"c"}); !reflect.DeepEqual(got, []string{"c"}) {
		t.Fatalf("expected explicit names to override the cascade, got %v", got)
	}
	if got := a.defaultCascade(nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected the configured cascade, got %v", got)
	}
}

func TestVerbosityFromFlags(t *testing.T) {
	cases := []struct {
		verbose, quiet, silent bool
		want                   plog.Verbosity
	}{
		{silent: true, want: plog.VerbositySilent},
		{quiet: true, want: plog.VerbosityQuiet},
		{verbose: true, want: plog.VerbosityVerbose},
		{want: plog.VerbosityDefault},
	}
	for _, c := range cases {
		if got := verbosityFromFlags(c.verbose, c.quiet, c.silent); got != c.want {
			t.Errorf("verbosityFromFlags(%v,%v,%v) = %v, want %v", c.verbose, c.quiet, c.silent, got, c.want)
		}
	}
}

func TestValidShellVariableName(t *testing.T) {
	cases := map[string]string{
		"my-package":  "my_package",
		"my.package":  "my_package",
		"AlreadyOK9":  "AlreadyOK9",
		"a b/c:d@e!f": "a_b_c_d_e_f",
	}
	for in, want := range cases {
		if got := validShellVariableName(in); got != want {
			t.Errorf("validShellVariableName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitPostscriptArgs(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"script.sh", []string{"script.sh"}},
		{"script.sh arg1 arg2", []string{"script.sh", "arg1", "arg2"}},
		{`script.sh "arg with spaces" last`, []string{"script.sh", "arg with spaces", "last"}},
	}
	for _, c := range cases {
		got := splitPostscriptArgs(c.in)
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("splitPostscriptArgs(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}
