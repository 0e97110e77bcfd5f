package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gst-reconciliation-service/internal/models"
	"gst-reconciliation-service/pkg/errors"
	"gst-reconciliation-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	booksCSV = `GSTIN,Party Name,Invoice Number,Invoice Date,Taxable Value,IGST
27AAAAA0000A1Z5,Alpha Traders,INV-1,01/04/2025,1000,180
27AAAAA0000A1Z5,Alpha Traders,INV-2,05/04/2025,25000,4500
`
	portalCSV = `GSTIN of Supplier,Trade/Legal name,Invoice Number,Invoice Date,Taxable Value,Integrated Tax
27AAAAA0000A1Z5,Alpha Traders,INV1,01/04/2025,1000,180
29BBBBB1111B1Z1,Beta Supplies,77,10/04/2025,5000,900
`
)

func TestMain(m *testing.M) {
	quiet, _ := logger.NewLogger(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: logger.TextFormat,
		Output: logger.StderrOutput,
		Writer: io.Discard,
	})
	logger.SetGlobalLogger(quiet)
	os.Exit(m.Run())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// useDatabase points the commands at a fresh database for the test
func useDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "links.db")
	viper.Set("database.path", path)
	return path
}

func errorCode(err error) errors.ErrorCode {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return rerr.Code
	}
	return ""
}

// runCommand executes a fresh reconcile command and returns stdout
func runCommand(t *testing.T, scope models.Scope, args ...string) (string, error) {
	t.Helper()
	cmd := newReconcileCommand(scope)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	return stdout.String(), err
}

// runRoot executes the root command with args and returns stdout
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	_, err := rootCmd.ExecuteC()
	return stdout.String(), err
}

func TestValidateFileExists(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "books.csv", booksCSV)

	tests := []struct {
		name     string
		path     string
		wantCode errors.ErrorCode
	}{
		{"existing file", file, ""},
		{"missing file", filepath.Join(dir, "missing.csv"), errors.CodeFileNotFound},
		{"directory", dir, errors.CodeUnsupportedExt},
		{"empty path", "", errors.CodeMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.path, "books register")
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if got := errorCode(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s (%v)", tt.wantCode, got, err)
			}
		})
	}
}

func TestValidateReconcileFlags(t *testing.T) {
	dir := t.TempDir()
	books := writeFile(t, dir, "books.csv", booksCSV)
	portal := writeFile(t, dir, "portal.csv", portalCSV)

	tests := []struct {
		name     string
		args     []string
		wantCode errors.ErrorCode
	}{
		{"valid", []string{"-b", books, "-p", portal}, ""},
		{"valid with options", []string{"-b", books, "-p", portal, "-t", "2.5", "--vendor-tolerance", "27AAAAA0000A1Z5=10", "--link", "B_0:G_1", "-f", "JSON"}, ""},
		{"missing books", []string{"-p", portal}, errors.CodeMissingField},
		{"missing portal", []string{"-b", books}, errors.CodeMissingField},
		{"portal not found", []string{"-b", books, "-p", filepath.Join(dir, "nope.csv")}, errors.CodeFileNotFound},
		{"amendments not found", []string{"-b", books, "-p", portal, "--amendments", filepath.Join(dir, "b2ba.csv")}, errors.CodeFileNotFound},
		{"bad format", []string{"-b", books, "-p", portal, "-f", "pdf"}, errors.CodeInvalidConfig},
		{"output dir missing", []string{"-b", books, "-p", portal, "-o", filepath.Join(dir, "out", "r.csv")}, errors.CodeFileNotFound},
		{"negative tolerance", []string{"-b", books, "-p", portal, "-t", "-1"}, errors.CodeInvalidTolerance},
		{"non-numeric tolerance", []string{"-b", books, "-p", portal, "-t", "five"}, errors.CodeInvalidTolerance},
		{"bad vendor tolerance", []string{"-b", books, "-p", portal, "--vendor-tolerance", "27AAAAA0000A1Z5=x"}, errors.CodeInvalidTolerance},
		{"bad link", []string{"-b", books, "-p", portal, "--link", "B_0"}, errors.CodeInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newReconcileCommand(models.ScopeInvoices)
			if err := cmd.ParseFlags(tt.args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}
			err := cmd.PreRunE(cmd, nil)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if got := errorCode(err); got != tt.wantCode {
				t.Errorf("expected code %s, got %s (%v)", tt.wantCode, got, err)
			}
		})
	}
}

func TestReconcileCommandFlags(t *testing.T) {
	tests := []struct {
		cmd       *cobra.Command
		use       string
		wantSmart bool
	}{
		{invoicesCmd, "invoices", true},
		{notesCmd, "notes", false},
	}

	for _, tt := range tests {
		t.Run(tt.use, func(t *testing.T) {
			if tt.cmd.Use != tt.use {
				t.Errorf("expected Use %q, got %q", tt.use, tt.cmd.Use)
			}
			for _, name := range []string{"books", "portal", "amendments", "output-format", "output-file", "tolerance", "vendor-tolerance", "link", "no-saved-links", "no-record", "include-matched", "gstin", "period"} {
				if tt.cmd.Flags().Lookup(name) == nil {
					t.Errorf("expected flag --%s", name)
				}
			}
			if got := tt.cmd.Flags().Lookup("smart") != nil; got != tt.wantSmart {
				t.Errorf("expected --smart present=%v, got %v", tt.wantSmart, got)
			}
			if !strings.Contains(tt.cmd.Long, "gst-reconciler "+tt.use) {
				t.Error("expected examples in the long help")
			}
		})
	}

	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"invoices", "notes", "links", "runs", "layouts", "serve"} {
		if !found[name] {
			t.Errorf("expected %s to be registered on the root command", name)
		}
	}
}

func TestRunInvoicesJSON(t *testing.T) {
	useDatabase(t)
	dir := t.TempDir()
	books := writeFile(t, dir, "books.csv", booksCSV)
	portal := writeFile(t, dir, "portal.csv", portalCSV)

	out, err := runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal, "-f", "json", "--period", "2025-04")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	var report struct {
		Scope   string `json:"scope"`
		RunID   string `json:"run_id"`
		Summary struct {
			MatchedCount     int    `json:"matched_count"`
			NotInPortalCount int    `json:"not_in_portal_count"`
			NotInBooksCount  int    `json:"not_in_books_count"`
			NotInPortalValue string `json:"not_in_portal_value"`
		} `json:"summary"`
		Rows []struct {
			Kind string `json:"kind"`
		} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}

	if report.Scope != "invoices" {
		t.Errorf("expected scope invoices, got %s", report.Scope)
	}
	if report.RunID == "" {
		t.Error("expected the run to be recorded")
	}
	if report.Summary.MatchedCount != 1 || report.Summary.NotInPortalCount != 1 || report.Summary.NotInBooksCount != 1 {
		t.Errorf("unexpected summary %+v", report.Summary)
	}
	if report.Summary.NotInPortalValue != "25000" {
		t.Errorf("expected 25000 not in portal, got %s", report.Summary.NotInPortalValue)
	}
	if len(report.Rows) != 3 {
		t.Errorf("expected 3 rows, got %d", len(report.Rows))
	}
}

func TestRunInvoicesToFile(t *testing.T) {
	dir := t.TempDir()
	books := writeFile(t, dir, "books.csv", booksCSV)
	portal := writeFile(t, dir, "portal.csv", portalCSV)
	output := filepath.Join(dir, "recon.csv")

	stdout, err := runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal,
		"-f", "csv", "-o", output, "--no-saved-links", "--no-record")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if stdout != "" {
		t.Errorf("expected nothing on stdout, got %q", stdout)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// header plus the two unmatched rows; matched rows are left out of CSV by default
	if len(lines) != 3 {
		t.Errorf("expected 3 CSV lines, got %d:\n%s", len(lines), data)
	}
	if !strings.HasPrefix(lines[0], "Kind,") {
		t.Errorf("expected a header row, got %q", lines[0])
	}
}

func TestRunWithSavedAndAdHocLinks(t *testing.T) {
	useDatabase(t)
	dir := t.TempDir()
	books := writeFile(t, dir, "books.csv", booksCSV)
	portal := writeFile(t, dir, "portal.csv", portalCSV)

	out, err := runRoot(t, "links", "add", "b_1", "g_1")
	if err != nil {
		t.Fatalf("links add failed: %v", err)
	}
	if !strings.Contains(out, "Linked B_1 to G_1 (invoices)") {
		t.Errorf("unexpected output %q", out)
	}

	var report struct {
		Summary struct {
			ManualCount int `json:"manual_count"`
		} `json:"summary"`
	}

	out, err = runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal, "-f", "json", "--no-record")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.Summary.ManualCount != 1 {
		t.Errorf("expected the saved link to be applied, got %d manual", report.Summary.ManualCount)
	}

	out, err = runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal, "-f", "json", "--no-record", "--no-saved-links")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	report.Summary.ManualCount = 0
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.Summary.ManualCount != 0 {
		t.Errorf("expected no manual matches with --no-saved-links, got %d", report.Summary.ManualCount)
	}

	out, err = runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal, "-f", "json",
		"--no-record", "--no-saved-links", "--link", "B_1:G_1")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if report.Summary.ManualCount != 1 {
		t.Errorf("expected the --link pair to be applied, got %d manual", report.Summary.ManualCount)
	}
}

func TestRunNotesConsole(t *testing.T) {
	dir := t.TempDir()
	books := writeFile(t, dir, "notes.csv", `GSTIN,Party Name,Note Number,Note Date,Note Type,Taxable Value,IGST
27AAAAA0000A1Z5,Alpha Traders,CN-9,15/04/2025,Credit Note,500,90
`)
	portal := writeFile(t, dir, "cdnr.csv", `GSTIN of Supplier,Trade/Legal name,Note Number,Note Date,Note Type,Taxable Value,Integrated Tax
27AAAAA0000A1Z5,Alpha Traders,CN-9,15/04/2025,Credit Note,500,90
29BBBBB1111B1Z1,Beta Supplies,DN-1,20/04/2025,Debit Note,300,54
`)

	out, err := runCommand(t, models.ScopeNotes, "-b", books, "-p", portal, "--no-saved-links", "--no-record")
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !strings.Contains(out, "Net ITC Impact:") {
		t.Errorf("expected net ITC impact in the console report:\n%s", out)
	}
	if !strings.Contains(out, "NOT IN BOOKS (1)") {
		t.Errorf("expected the unmatched debit note:\n%s", out)
	}
}

func TestRunMissingColumn(t *testing.T) {
	dir := t.TempDir()
	books := writeFile(t, dir, "books.csv", "GSTIN,Invoice Number,Taxable Value\n27AAAAA0000A1Z5,1,100\n")
	portal := writeFile(t, dir, "portal.csv", portalCSV)

	_, err := runCommand(t, models.ScopeInvoices, "-b", books, "-p", portal, "--no-saved-links", "--no-record")
	if got := errorCode(err); got != errors.CodeMissingColumn {
		t.Errorf("expected missing column error, got %s (%v)", got, err)
	}
}
