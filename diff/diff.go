// Diff related utilities.
package diff

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/kylelemons/godebug/diff"
	"gopkg.in/yaml.v3"
)

// Chunks represents a collection of chunks that describe the difference between two
// texts. Each chunk describes a series of added, deleted, and equal lines.
// The primary purpose of Chunks is to display text differences in a readable format,
// with added lines prefixed with '+' and deleted lines prefixed with '-'.
type Chunks []diff.Chunk

// DiffAsYaml compares the YAML representation of a and b.
func DiffAsYaml(a, b any) Chunks {
	return Chunks(diff.DiffChunks(yamlLines(a), yamlLines(b)))
}

func yamlLines(v any) []string {
	if v == nil {
		return []string{}
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// HasChanges return true when the chunks contains changes.
func (c Chunks) HasChanges() bool {
	for _, chunk := range c {
		if len(chunk.Added) > 0 {
			return true
		}
		if len(chunk.Deleted) > 0 {
			return true
		}
	}
	return false
}

func (c Chunks) write(buff *bytes.Buffer, added, deleted *color.Color) {
	for _, chunk := range c {
		for _, line := range chunk.Added {
			added.Fprintf(buff, "+%s", line)
			fmt.Fprintf(buff, "\n")
		}
		for _, line := range chunk.Deleted {
			deleted.Fprintf(buff, "-%s", line)
			fmt.Fprintf(buff, "\n")
		}
		for _, line := range chunk.Equal {
			fmt.Fprintf(buff, " %s\n", line)
		}
	}
}

// String returns the diff without colors.
func (c Chunks) String() string {
	var buff bytes.Buffer
	plain := color.New()
	plain.DisableColor()
	c.write(&buff, plain, plain)
	return buff.String()
}

// TerminalString returns the diff with ANSI colors, unless color.NoColor is set.
func (c Chunks) TerminalString() string {
	var buff bytes.Buffer
	c.write(&buff, color.New(color.FgGreen), color.New(color.FgRed))
	return buff.String()
}
