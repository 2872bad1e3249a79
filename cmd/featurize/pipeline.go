package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/featurize/example"
	"github.com/wippyai/featurize/serializer"
)

const maxLineSize = 4 << 20

var (
	sharedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	labeledStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#98FB98"))
)

// pipeline turns JSON decision records into engine text lines.
type pipeline struct {
	serializer *serializer.Serializer[decision]
	log        *zap.Logger
}

func newPipeline(f *serializer.Factory, log *zap.Logger) (*pipeline, error) {
	s, err := serializer.For[decision](f)
	if err != nil {
		return nil, fmt.Errorf("compile decision serializer: %w", err)
	}
	return &pipeline{serializer: s, log: log}, nil
}

// featurize converts one JSON record into its example lines.
func (p *pipeline) featurize(data []byte) ([]string, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	ctx := example.Acquire()
	defer example.Release(ctx)

	var err error
	if rec.Outcome != nil {
		err = p.serializer.SerializeAt(ctx, rec.Decision, rec.Outcome.label(), rec.Outcome.Chosen)
	} else {
		err = p.serializer.Serialize(ctx, rec.Decision, nil)
	}
	if err != nil {
		return nil, err
	}

	examples := ctx.Examples()
	lines := make([]string, len(examples))
	for i := range examples {
		lines[i] = examples[i].Text
	}
	return lines, nil
}

// run featurizes every non-blank line of in and writes the examples of each record to
// out, separated by a blank line.
func (p *pipeline) run(in io.Reader, out io.Writer, styled bool) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	w := bufio.NewWriter(out)
	defer w.Flush()

	records, lineNo := 0, 0
	for scanner.Scan() {
		lineNo++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		lines, err := p.featurize(data)
		if err != nil {
			return records, fmt.Errorf("line %d: %w", lineNo, err)
		}
		p.log.Debug("featurized record", zap.Int("line", lineNo), zap.Int("examples", len(lines)))

		if records > 0 {
			w.WriteString("\n")
		}
		for _, l := range lines {
			w.WriteString(render(l, styled))
			w.WriteString("\n")
		}
		records++
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read input: %w", err)
	}
	return records, w.Flush()
}

// render highlights shared and labeled lines for terminals.
func render(line string, styled bool) string {
	if !styled {
		return line
	}
	switch {
	case strings.HasPrefix(line, "shared"):
		return sharedStyle.Render(line)
	case !strings.HasPrefix(line, "|"):
		return labeledStyle.Render(line)
	}
	return line
}
