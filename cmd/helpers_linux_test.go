package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// redirect points *file to a pipe, copying everything written to it to both the
// original file and the returned buffer. The returned function restores *file and
// waits for the copy to finish.
func redirect(t *testing.T, file **os.File) (*bytes.Buffer, func()) {
	original := *file
	reader, writer, err := os.Pipe()
	require.NoError(t, err)
	*file = writer

	buf := &bytes.Buffer{}
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		if _, err := io.Copy(io.MultiWriter(original, buf), reader); err != nil {
			t.Errorf("failed to copy output: %s", err)
		}
	}()

	return buf, func() {
		*file = original
		require.NoError(t, writer.Close())
		<-doneCh
		require.NoError(t, reader.Close())
	}
}

// TestCmd runs RootCmd with Args and Stdin, and checks its exit code and output.
type TestCmd struct {
	Args                 []string
	Stdin                string
	ExpectedCode         int
	ExpectStdoutContains []string
	ExpectStderrContains []string
}

func (c TestCmd) String() string {
	return "roam " + strings.Join(c.Args, " ")
}

func (c *TestCmd) execute(t *testing.T) (code int) {
	originalExit := Exit
	defer func() { Exit = originalExit }()
	Exit = func(code int) {
		panic(code)
	}
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		exitCode, ok := r.(int)
		if !ok {
			panic(r)
		}
		code = exitCode
	}()

	RootCmd.SetArgs(c.Args)
	RootCmd.SetIn(strings.NewReader(c.Stdin))
	if err := RootCmd.Execute(); err != nil {
		t.Errorf("%v: %s", c, err)
		return 1
	}
	return 0
}

func (c *TestCmd) Run(t *testing.T) {
	ResetFlags()
	t.Cleanup(ResetFlags)

	stdout, restoreStdout := redirect(t, &os.Stdout)
	stderr, restoreStderr := redirect(t, &os.Stderr)
	code := c.execute(t)
	restoreStdout()
	restoreStderr()

	require.Equal(t, c.ExpectedCode, code, "%v: unexpected exit code", c)
	for _, str := range c.ExpectStdoutContains {
		require.Contains(t, stdout.String(), str, "%v: stdout does not contain expected content", c)
	}
	for _, str := range c.ExpectStderrContains {
		require.Contains(t, stderr.String(), str, "%v: stderr does not contain expected content", c)
	}
}
