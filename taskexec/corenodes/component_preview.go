package corenodes

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/microcosm-cc/bluemonday"

	"github.com/dagforge/engine/engineerr"
	"github.com/dagforge/engine/taskexec"
)

// previewPolicy is shared across every component-preview node execution;
// bluemonday policies are safe for concurrent use once built.
var previewPolicy = bluemonday.UGCPolicy()

// componentPreviewExecute renders a node's Component output (Markdown or
// raw HTML) to sanitized HTML. Data["format"] selects the source format
// ("markdown", default, or "html").
func componentPreviewExecute(ctx *taskexec.Context) (taskexec.Outputs, error) {
	component, ok := ctx.Inputs["component"]
	if !ok {
		return nil, engineerr.New(engineerr.MissingInput, "component-preview requires a component input").WithNode(ctx.Node.ID)
	}
	source, ok := component.(string)
	if !ok {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "component-preview: component input must be a string, got %T", component).WithNode(ctx.Node.ID)
	}

	format, _ := ctx.Node.Data["format"].(string)
	var rawHTML []byte
	switch strings.ToLower(format) {
	case "html":
		rawHTML = []byte(source)
	default:
		rawHTML = markdown.ToHTML([]byte(source), nil, nil)
	}

	sanitized := previewPolicy.SanitizeBytes(rawHTML)

	// Structural validation: the rendered preview must parse as HTML, so
	// a malformed Component never silently produces empty output.
	if _, err := goquery.NewDocumentFromReader(strings.NewReader(string(sanitized))); err != nil {
		return nil, engineerr.Newf(engineerr.ExecutionFailed, "component-preview: %v", err).WithNode(ctx.Node.ID)
	}

	return taskexec.Outputs{"html": string(sanitized)}, nil
}

// previewText extracts the plain-text content of a rendered preview, used
// by callers (and tests) that want to assert on content rather than
// markup.
func previewText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse preview html: %w", err)
	}
	return doc.Text(), nil
}
