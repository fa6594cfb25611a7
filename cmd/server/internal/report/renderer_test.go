package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyLine(t *testing.T) {
	cases := []struct {
		in       string
		wantKind lineKind
		wantText string
	}{
		{"### Heading", lineHeading, "Heading"},
		{"### **Patient Clinical Report**", lineHeading, "Patient Clinical Report"},
		{"**Sub**", lineSubheading, "Sub"},
		{"Body text", lineBody, "Body text"},
		{"", lineBlank, ""},
		{"   ", lineBlank, ""},
		{"**not closed", lineBody, "**not closed"},
		{"****", lineBody, "****"}, // too short to be a bold wrap
		{"### **Bold heading** trailing", lineHeading, "Bold heading trailing"},
	}

	for _, tc := range cases {
		kind, text := classifyLine(tc.in)
		assert.Equal(t, tc.wantKind, kind, "line %q", tc.in)
		assert.Equal(t, tc.wantText, text, "line %q", tc.in)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	// A heading line that is also bold-wrapped must classify as heading.
	kind, _ := classifyLine("### **Both**")
	assert.Equal(t, lineHeading, kind)
}

func TestRenderPDF(t *testing.T) {
	reportText := "### Assessment & Diagnosis\n\n**Provisional Diagnosis**\nMigraine with aura.\n"
	outPath := filepath.Join(t.TempDir(), "report.pdf")

	require.NoError(t, RenderPDF(reportText, outPath))

	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(500), "artifact should be a non-trivial PDF")

	head := make([]byte, 5)
	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(head))
}

func TestRenderPDFEmptyReport(t *testing.T) {
	outPath := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, RenderPDF("", outPath))
	_, err := os.Stat(outPath)
	assert.NoError(t, err, "even an empty report yields a titled document")
}
