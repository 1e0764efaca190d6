package errs

import "testing"

func TestReportError(t *testing.T) {
	r := New(Comm, "connect", nil)
	if got, want := r.Error(), "Comm/connect"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := New(Comm, "connect", errTest("refused"))
	if got, want := wrapped.Error(), "Comm/connect: refused"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if wrapped.Unwrap() == nil {
		t.Error("Unwrap() = nil, want underlying error")
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestIsFatalFatalTable(t *testing.T) {
	cases := []string{"Process/not_found", "Comm/connect", "ProcTrace/observed_process", "System/bind", "System/listen", "BadConfig/required"}
	for _, tok := range cases {
		kind, opt := splitToken(tok)
		if !IsFatal(New(kind, opt, nil)) {
			t.Errorf("IsFatal(%s) = false, want true", tok)
		}
	}
}

func TestIsFatalWarningTable(t *testing.T) {
	cases := []string{"ProcTrace/cannot_trace", "System/get_threads", "Monitor/reset", "Monitor/start", "Comm/send"}
	for _, tok := range cases {
		kind, opt := splitToken(tok)
		if IsFatal(New(kind, opt, nil)) {
			t.Errorf("IsFatal(%s) = true, want false", tok)
		}
	}
}

func TestIsFatalUnknownAlwaysFatal(t *testing.T) {
	if !IsFatal(New(Unknown, "whatever", nil)) {
		t.Error("IsFatal(Unknown) = false, want true")
	}
}

func TestIsFatalUnlistedDefaultsWarning(t *testing.T) {
	if IsFatal(New(Monitor, "some_unlisted_case", nil)) {
		t.Error("IsFatal(unlisted) = true, want false (default warning policy)")
	}
}

func TestIsFatalNilReport(t *testing.T) {
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true, want false")
	}
}

func TestContextReportFiresOnFatalOnce(t *testing.T) {
	var fired []string
	ctx := NewContext("target1", func(r *Report) { fired = append(fired, r.Token()) })

	ctx.Report(Monitor, "reset", nil) // warning, no fire
	ctx.Report(System, "bind", nil)   // fatal, fires
	ctx.Report(System, "listen", nil) // fatal again, must not fire twice

	if len(fired) != 1 {
		t.Fatalf("onFatal fired %d times, want 1: %v", len(fired), fired)
	}
	if fired[0] != "System/bind" {
		t.Errorf("onFatal token = %q, want System/bind", fired[0])
	}
	if ctx.Name() != "target1" {
		t.Errorf("Name() = %q, want target1", ctx.Name())
	}
}

func splitToken(tok string) (Kind, string) {
	for i := 0; i < len(tok); i++ {
		if tok[i] == '/' {
			return kindFromString(tok[:i]), tok[i+1:]
		}
	}
	return Unknown, tok
}

func kindFromString(s string) Kind {
	kinds := []Kind{FileNotFound, BadConfig, Process, System, ProcTrace, Comm, Monitor, Strategy, History, Unsupported, Unknown}
	for _, k := range kinds {
		if k.String() == s {
			return k
		}
	}
	return Unknown
}
