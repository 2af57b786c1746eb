package sevenzip

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"reshelve/internal/services"
)

// binaryCandidates are probed on PATH, in order, when no explicit binary is
// configured. 7zz is the standalone upstream build, 7z and 7za the
// distribution packages.
var binaryCandidates = []string{"7zz", "7z", "7za"}

// passwordIndicators are stderr fragments that mean the archive is encrypted
// and the supplied password (or lack of one) is wrong.
var passwordIndicators = []string{
	"wrong password",
	"password is incorrect",
	"can not open encrypted archive",
	"data error in encrypted file",
}

// ProgressUpdate carries extraction or compression progress.
type ProgressUpdate struct {
	Percent float64
}

// Archiver defines the archive operations the pipeline needs.
type Archiver interface {
	Extract(ctx context.Context, archive, destDir string, progress func(ProgressUpdate)) (string, error)
	Compress(ctx context.Context, source, outPath string, progress func(ProgressUpdate)) error
}

// Executor abstracts command execution for testability. Stdout lines stream
// through onStdout; stderr is returned whole because failure classification
// needs it after the fact.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) (string, error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps 7-Zip CLI interactions.
type Client struct {
	binary    string
	passwords []string
	format    string
	level     int
	exec      Executor
}

// ResolveBinary returns the archiver binary to run: the explicit value when
// set, else the first candidate found on PATH.
func ResolveBinary(explicit string) (string, error) {
	if trimmed := strings.TrimSpace(explicit); trimmed != "" {
		return trimmed, nil
	}
	for _, candidate := range binaryCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", services.Wrap(services.ErrConfiguration, "sevenzip", "resolve",
		fmt.Sprintf("no archiver binary found (tried %s)", strings.Join(binaryCandidates, ", ")), nil)
}

// New constructs a 7-Zip client. Passwords are candidate extraction passwords
// tried in order after the no-password attempt; format and level control
// recompression.
func New(binary string, passwords []string, format string, level int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("sevenzip binary required")
	}
	client := &Client{
		binary:    binary,
		passwords: passwords,
		format:    format,
		level:     level,
		exec:      commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

var percentRe = regexp.MustCompile(`^\s*(\d{1,3})%`)

func forwardProgress(progress func(ProgressUpdate)) func(string) {
	if progress == nil {
		return nil
	}
	return func(line string) {
		// -bsp1 emits carriage-return separated percent updates.
		for _, chunk := range strings.Split(line, "\r") {
			if m := percentRe.FindStringSubmatch(chunk); m != nil {
				if pct, err := strconv.Atoi(m[1]); err == nil && pct >= 0 && pct <= 100 {
					progress(ProgressUpdate{Percent: float64(pct)})
				}
			}
		}
	}
}

func isPasswordFailure(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, indicator := range passwordIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}

// Extract unpacks an archive into destDir, trying the no-password attempt
// first and then each candidate password. It returns the password that
// worked, empty for unencrypted archives. All candidates failing on a
// password indicator yields ErrPassword.
func (c *Client) Extract(ctx context.Context, archive, destDir string, progress func(ProgressUpdate)) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create extraction directory: %w", err)
	}

	attempts := append([]string{""}, c.passwords...)
	var lastErr error
	for _, password := range attempts {
		args := []string{"x", archive, "-o" + destDir, "-y", "-bsp1", "-bso0"}
		if password != "" {
			args = append(args, "-p"+password)
		}
		stderr, err := c.exec.Run(ctx, c.binary, args, forwardProgress(progress))
		if err == nil {
			return password, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if isPasswordFailure(stderr) {
			lastErr = services.Wrap(services.ErrPassword, "sevenzip", "extract", archive, err)
			continue
		}
		return "", services.Wrap(services.ErrExternalTool, "sevenzip", "extract",
			strings.TrimSpace(stderr), err)
	}
	if lastErr == nil {
		lastErr = services.Wrap(services.ErrPassword, "sevenzip", "extract", archive, nil)
	}
	return "", lastErr
}

// Compress packs source (a file or directory) into outPath using the
// configured container format and level.
func (c *Client) Compress(ctx context.Context, source, outPath string, progress func(ProgressUpdate)) error {
	args := []string{
		"a",
		"-t" + c.format,
		fmt.Sprintf("-mx=%d", c.level),
		outPath,
		source,
		"-bsp1",
		"-bso0",
	}
	stderr, err := c.exec.Run(ctx, c.binary, args, forwardProgress(progress))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrExternalTool, "sevenzip", "compress",
			strings.TrimSpace(stderr), err)
	}
	return nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onStdout != nil {
				onStdout(scanner.Text())
			}
		}
		// Drain anything the scanner gave up on so the child never blocks.
		_, _ = io.Copy(io.Discard, stdout)
	}()

	wg.Wait()
	err = cmd.Wait()
	return stderrBuf.String(), err
}
