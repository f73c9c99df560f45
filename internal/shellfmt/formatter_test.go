package shellfmt

import "testing"

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Kind("fish")); err == nil {
		t.Fatal("expected error for unknown shell kind")
	}
}

func TestPosixWrapAndExtract(t *testing.T) {
	f, err := New(Bash)
	if err != nil {
		t.Fatal(err)
	}

	wrapped, err := f.Wrap("echo hi", "S1", "E1")
	if err != nil {
		t.Fatal(err)
	}
	want := `echo "S1"; echo hi; echo "E1:$?"`
	if wrapped != want {
		t.Fatalf("Wrap = %q, want %q", wrapped, want)
	}

	injected := "S1\nhi\nE1:0\n"
	code, ok := f.ExtractExitCode(injected, "E1")
	if !ok || code != 0 {
		t.Fatalf("ExtractExitCode = (%d, %v), want (0, true)", code, ok)
	}
}

func TestPosixNonZeroExit(t *testing.T) {
	f, _ := New(Sh)
	injected := "S2\nE2:1\n"
	code, ok := f.ExtractExitCode(injected, "E2")
	if !ok || code != 1 {
		t.Fatalf("ExtractExitCode = (%d, %v), want (1, true)", code, ok)
	}
}

func TestPowerShellExitCode(t *testing.T) {
	f, _ := New(PowerShell)
	wrapped, _ := f.Wrap("Get-Item missing", "S3", "E3")
	want := `Write-Output "S3"; Get-Item missing; Write-Output "E3:$LASTEXITCODE"`
	if wrapped != want {
		t.Fatalf("Wrap = %q, want %q", wrapped, want)
	}

	injected := "S3\r\nGet-Item : ...\r\nE3:1\r\n"
	code, ok := f.ExtractExitCode(injected, "E3")
	if !ok || code != 1 {
		t.Fatalf("ExtractExitCode = (%d, %v), want (1, true)", code, ok)
	}
}

func TestCmdExitCode(t *testing.T) {
	f, _ := New(Cmd)
	injected := "S4 \r\nFile Not Found\r\nE4:1\r\n"
	code, ok := f.ExtractExitCode(injected, "E4")
	if !ok || code != 1 {
		t.Fatalf("ExtractExitCode = (%d, %v), want (1, true)", code, ok)
	}
}

func TestExtractExitCodeAbsent(t *testing.T) {
	f, _ := New(Bash)
	if _, ok := f.ExtractExitCode("S5\nstill running\n", "E5"); ok {
		t.Fatal("expected no exit code before the end marker appears")
	}
}

func TestWrapRejectsEmptyMarkerOrCommand(t *testing.T) {
	f, _ := New(Bash)
	if _, err := f.Wrap("", "S", "E"); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := f.Wrap("echo hi", "", "E"); err == nil {
		t.Fatal("expected error for empty start marker")
	}
	if _, err := f.Wrap("echo hi", "S", ""); err == nil {
		t.Fatal("expected error for empty end marker")
	}
}

func TestKeepAliveNonEmptyPerShell(t *testing.T) {
	for _, kind := range []Kind{Bash, Sh, PowerShell, Cmd} {
		f, err := New(kind)
		if err != nil {
			t.Fatal(err)
		}
		if f.KeepAlive() == "" {
			t.Fatalf("%s: keep-alive must not be empty", kind)
		}
	}
}
