package gps

import (
	"context"
	"io"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// commandSource reads NMEA from the stdout of a helper program, for example
// "gpspipe -r" or a vendor tool that configures the receiver before relaying
// its output. The last lines of stderr are kept for error reports.
type commandSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer

	waitOnce sync.Once
	waitErr  error
}

func startCommand(ctx context.Context, name string, args []string, env map[string]string) (*commandSource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("gps command is required")
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), envList(env)...)
	}
	stderr := newTailBuffer(20, 1024)
	cmd.Stderr = stderr
	// A grandchild holding stderr open must not stall Wait.
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start")
	}
	return &commandSource{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// Read returns io.EOF when the program exits cleanly and an error carrying
// the last stderr line when it fails.
func (c *commandSource) Read(p []byte) (int, error) {
	n, err := c.stdout.Read(p)
	if err != io.EOF {
		return n, err
	}
	if werr := c.wait(); werr != nil {
		if line := c.stderr.last(); line != "" {
			return n, errors.Wrapf(werr, "%s (%s)", c.cmd.Path, line)
		}
		return n, errors.Wrap(werr, c.cmd.Path)
	}
	return n, io.EOF
}

func (c *commandSource) Close() error {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.wait()
	return nil
}

func (c *commandSource) wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
	})
	return c.waitErr
}

func (c *commandSource) describe() string {
	return strings.Join(c.cmd.Args, " ")
}

func envList(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
