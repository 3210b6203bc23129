package main

import (
	"bytes"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fd1az/chainstream/business/feemarket/domain"
	"github.com/fd1az/chainstream/internal/config"
)

func TestRootCmd_Commands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"watch", "backfill", "fee"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered (err %v)", name, err)
		}
	}

	backfill, _, _ := root.Find([]string{"backfill"})
	for _, flag := range []string{"from", "to", "follow"} {
		if backfill.Flags().Lookup(flag) == nil {
			t.Errorf("backfill missing --%s", flag)
		}
	}
}

func TestBackfillCmd_RequiresFrom(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"backfill", "--to", "10"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "from") {
		t.Fatalf("err = %v, want required flag error", err)
	}
}

func TestPrintEstimate(t *testing.T) {
	state, err := domain.NewState(30_000_000, 30_000_000, big.NewInt(1_000_000_000), 0, 0)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	e, err := domain.NewFeeEstimate(domain.Cancun(), 100, state, big.NewInt(2_000_000_000))
	if err != nil {
		t.Fatalf("NewFeeEstimate: %v", err)
	}

	var out bytes.Buffer
	printEstimate(&out, domain.Cancun(), e, &feeOptions{gasLimit: 21_000, blobs: 1})

	got := out.String()
	for _, want := range []string{
		"block #100 (cancun)",
		"1.1250 gwei",
		"4.2500 gwei",
		"blob cost (1)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrintProjection(t *testing.T) {
	var out bytes.Buffer
	printProjection(&out, []domain.Projection{
		{Offset: 1, BaseFee: big.NewInt(1_125_000_000), BlobBaseFee: big.NewInt(1)},
		{Offset: 2, BaseFee: big.NewInt(1_265_625_000), BlobBaseFee: big.NewInt(1)},
	})

	got := out.String()
	for _, want := range []string{"+1", "1.1250", "+2", "1.2656"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestLogOutput(t *testing.T) {
	if w, _ := logOutput(config.AppConfig{}, true); w != io.Discard {
		t.Errorf("tui without log file should discard, got %T", w)
	}
	if w, _ := logOutput(config.AppConfig{}, false); w != os.Stderr {
		t.Errorf("cli without log file should use stderr, got %T", w)
	}

	path := filepath.Join(t.TempDir(), "chainstream.log")
	w, closeLog := logOutput(config.AppConfig{LogFile: path, LogMaxSize: 1}, true)
	if _, err := io.WriteString(w, "hello\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "hello\n" {
		t.Errorf("log file = %q, %v", data, err)
	}
}
