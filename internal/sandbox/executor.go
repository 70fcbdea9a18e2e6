package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selivandex/superagent/pkg/logger"
)

const (
	defaultTimeout    = 150 * time.Second
	containerCodePath = "/tmp"
)

// ErrTimeout is returned when a run exceeds the wall-clock bound
var ErrTimeout = errors.New("sandbox: execution timed out")

// ExecError reports a non-zero exit; Output carries merged stdout+stderr
type ExecError struct {
	ExitCode int
	Output   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("sandbox: exit code %d", e.ExitCode)
}

// IOError reports file-injection or container-provisioning failure.
// Fatal to the cycle.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("sandbox io: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Executor injects per-cycle python scripts into a long-lived container and
// runs them with a hard wall-clock bound. The container is reused across
// cycles to amortize startup; one driver process owns it exclusively.
type Executor struct {
	cli         *client.Client
	containerID string
	cacheDir    string
	env         []string
	timeout     time.Duration
}

// Config configures the executor
type Config struct {
	ContainerName string
	Image         string
	CacheDir      string
	Env           map[string]string // Injected into every run
	Timeout       time.Duration
}

// New resolves the container by name, creating and starting it when missing.
// Creation failure is fatal.
func New(ctx context.Context, cli *client.Client, cfg Config) (*Executor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	ex := &Executor{
		cli:      cli,
		cacheDir: cfg.CacheDir,
		env:      env,
		timeout:  cfg.Timeout,
	}

	inspected, err := cli.ContainerInspect(ctx, cfg.ContainerName)
	if err == nil {
		ex.containerID = inspected.ID
		if !inspected.State.Running {
			if err := cli.ContainerStart(ctx, inspected.ID, container.StartOptions{}); err != nil {
				return nil, &IOError{Op: "start container", Err: err}
			}
		}
		logger.Info("sandbox container resolved",
			zap.String("name", cfg.ContainerName),
			zap.String("id", shortID(inspected.ID)),
		)
		return ex, nil
	}
	if !client.IsErrNotFound(err) {
		return nil, &IOError{Op: "inspect container", Err: err}
	}

	created, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: cfg.Image,
			Env:   []string{"PYTHONUNBUFFERED=1"},
			Cmd:   []string{"sleep", "infinity"},
		},
		&container.HostConfig{
			NetworkMode:   "host",
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
		},
		nil, nil, cfg.ContainerName,
	)
	if err != nil {
		return nil, &IOError{Op: "create container", Err: err}
	}
	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, &IOError{Op: "start container", Err: err}
	}

	ex.containerID = created.ID

	logger.Info("sandbox container created",
		zap.String("name", cfg.ContainerName),
		zap.String("image", cfg.Image),
		zap.String("id", shortID(created.ID)),
	)

	return ex, nil
}

// WriteCode materializes the script to the host cache, injects it into the
// container as a tar stream, verifies it landed and returns the in-container
// path plus the read-back body.
func (ex *Executor) WriteCode(ctx context.Context, script, postfix, containerPath string) (string, string, error) {
	name := scriptName(postfix)

	hostDir := filepath.Join(ex.cacheDir, "temp_codes_"+postfix)
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return "", "", &IOError{Op: "create cache dir", Err: err}
	}
	if err := os.WriteFile(filepath.Join(hostDir, name), []byte(script), 0644); err != nil {
		return "", "", &IOError{Op: "write host cache", Err: err}
	}

	archive, err := tarFile(name, []byte(script))
	if err != nil {
		return "", "", &IOError{Op: "build tar stream", Err: err}
	}
	if err := ex.cli.CopyToContainer(ctx, ex.containerID, containerPath, archive, container.CopyToContainerOptions{}); err != nil {
		return "", "", &IOError{Op: "copy to container", Err: err}
	}

	inContainerPath := containerPath + "/" + name

	if _, code, err := ex.exec(ctx, []string{"/bin/sh", "-c", "test -f " + inContainerPath}); err != nil || code != 0 {
		return "", "", &IOError{Op: "verify injected file", Err: fmt.Errorf("test -f %s failed (exit %d): %v", inContainerPath, code, err)}
	}

	reflected, code, err := ex.exec(ctx, []string{"/bin/sh", "-c", "cat " + inContainerPath})
	if err != nil || code != 0 {
		return "", "", &IOError{Op: "read back injected file", Err: fmt.Errorf("cat %s failed (exit %d): %v", inContainerPath, code, err)}
	}

	return inContainerPath, reflected, nil
}

// RunCode writes the script and executes it with the configured env, merging
// stdout and stderr. Returns ErrTimeout on the wall-clock bound and ExecError
// on non-zero exit. Stray python processes are killed after every run.
func (ex *Executor) RunCode(ctx context.Context, script, postfix string) (string, string, error) {
	path, reflected, err := ex.WriteCode(ctx, script, postfix, containerCodePath)
	if err != nil {
		return "", "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, ex.timeout)
	defer cancel()
	defer ex.killStrayPython()

	start := time.Now()
	output, exitCode, err := ex.execEnv(runCtx, []string{"/bin/sh", "-c", "python -u " + path + " 2>&1"}, ex.env)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
			logger.Warn("⏱️ sandbox execution timed out",
				zap.String("postfix", postfix),
				zap.Duration("timeout", ex.timeout),
			)
			return output, reflected, ErrTimeout
		}
		return output, reflected, &IOError{Op: "exec", Err: err}
	}

	logger.Debug("sandbox run finished",
		zap.String("postfix", postfix),
		zap.Int("exit_code", exitCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("output_len", len(output)),
	)

	if exitCode != 0 {
		return output, reflected, &ExecError{ExitCode: exitCode, Output: output}
	}

	return output, reflected, nil
}

// Timeout returns the configured wall-clock bound
func (ex *Executor) Timeout() time.Duration {
	return ex.timeout
}

func (ex *Executor) exec(ctx context.Context, cmd []string) (string, int, error) {
	return ex.execEnv(ctx, cmd, nil)
}

func (ex *Executor) execEnv(ctx context.Context, cmd []string, env []string) (string, int, error) {
	created, err := ex.cli.ContainerExecCreate(ctx, ex.containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", -1, fmt.Errorf("exec create failed: %w", err)
	}

	attach, err := ex.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return "", -1, fmt.Errorf("exec attach failed: %w", err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() {
		// stdout and stderr land in the same buffer; the shell already
		// merges them with 2>&1
		_, copyErr := stdcopy.StdCopy(&buf, &buf, attach.Reader)
		done <- copyErr
	}()

	select {
	case <-ctx.Done():
		return buf.String(), -1, ctx.Err()
	case copyErr := <-done:
		if copyErr != nil {
			return buf.String(), -1, fmt.Errorf("exec read failed: %w", copyErr)
		}
	}

	inspected, err := ex.cli.ContainerExecInspect(context.WithoutCancel(ctx), created.ID)
	if err != nil {
		return buf.String(), -1, fmt.Errorf("exec inspect failed: %w", err)
	}

	return buf.String(), inspected.ExitCode, nil
}

// killStrayPython best-effort terminates leftover interpreter processes so a
// timed-out script cannot poison the next run
func (ex *Executor) killStrayPython() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, _, err := ex.exec(ctx, []string{"/bin/sh", "-c", "pkill -9 -f 'python -u /tmp/' || true"}); err != nil {
		logger.Debug("stray python cleanup failed", zap.Error(err))
	}
}

// scriptName builds a timestamped unique file name for one injected script
func scriptName(postfix string) string {
	return fmt.Sprintf("agent_%s_%s_%s.py",
		postfix,
		time.Now().Format("20060102_150405"),
		strings.Split(uuid.NewString(), "-")[0],
	)
}

func tarFile(name string, body []byte) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(body)),
		ModTime: time.Now(),
	}); err != nil {
		return nil, err
	}
	if _, err := tw.Write(body); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
