package procrunner_test

import (
	"context"
	"testing"
	"time"

	"github.com/nadimtuhin/loopwork/internal/procrunner"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	r := procrunner.New()
	res := r.Run(context.Background(), procrunner.Request{
		Executable: "sh",
		Args:       []string{"-c", "echo hello"},
		Timeout:    5 * time.Second,
	})

	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.KillReason != procrunner.KillNone {
		t.Errorf("KillReason = %q, want empty", res.KillReason)
	}
}

func TestRunStreamsLinesToSink(t *testing.T) {
	r := procrunner.New()
	var lines []string
	res := r.Run(context.Background(), procrunner.Request{
		Executable: "sh",
		Args:       []string{"-c", "echo one; echo two"},
		Timeout:    5 * time.Second,
		OnLine: func(stream procrunner.Stream, line string) {
			if stream == procrunner.Stdout {
				lines = append(lines, line)
			}
		},
	})

	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", res.ExitCode)
	}
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("streamed lines = %v, want [one two]", lines)
	}
}

func TestRunTimeoutEscalatesToKill(t *testing.T) {
	r := procrunner.New()
	start := time.Now()
	res := r.Run(context.Background(), procrunner.Request{
		Executable: "sh",
		Args:       []string{"-c", "trap '' INT TERM; sleep 10"},
		Timeout:    300 * time.Millisecond,
		KillGrace:  200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	if res.KillReason != procrunner.KillTimeout {
		t.Errorf("KillReason = %q, want %q", res.KillReason, procrunner.KillTimeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("elapsed = %s, want well under the 10s sleep", elapsed)
	}
}

func TestRunSpawnErrorReportsExitCodeNegativeOne(t *testing.T) {
	r := procrunner.New()
	res := r.Run(context.Background(), procrunner.Request{
		Executable: "definitely-not-a-real-executable-xyz",
		Timeout:    time.Second,
	})

	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
	if res.KillReason != procrunner.KillSpawnErr {
		t.Errorf("KillReason = %q, want %q", res.KillReason, procrunner.KillSpawnErr)
	}
}

func TestRunCancellationReportsCancelled(t *testing.T) {
	r := procrunner.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	res := r.Run(ctx, procrunner.Request{
		Executable: "sh",
		Args:       []string{"-c", "sleep 10"},
		KillGrace:  200 * time.Millisecond,
	})

	if res.KillReason != procrunner.KillCancelled {
		t.Errorf("KillReason = %q, want %q", res.KillReason, procrunner.KillCancelled)
	}
}
