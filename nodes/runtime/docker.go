// Package runtime implements Runtime-kind node templates. DockerRuntime is
// the sandboxed execution environment a shell Tool node execs commands
// against: one container per runtime node, created on Start and torn down on
// Stop, with no network access and a bind-mounted scratch workspace.
package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	archive "github.com/moby/go-archive"
	"github.com/google/uuid"

	"github.com/smallnest/agentgraph/engine"
)

// DockerTemplateID is the template id graphs reference for a Docker-backed
// runtime node.
const DockerTemplateID = "runtime.docker"

const (
	defaultImage       = "python:3-slim"
	defaultWorkDir     = "/workspace"
	defaultExecTimeout = 30 * time.Second
)

// ExecSpec is one command a Tool node asks a Runtime to run.
type ExecSpec struct {
	Cmd     string
	Args    []string
	Env     map[string]string
	Cwd     string
	Timeout time.Duration
}

// ExecResult is what Exec returns, mirroring the aborted-call shape a
// cancelled exec must produce: ExitCode 124, empty Stdout, Stderr "Aborted".
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Execer is implemented by Runtime instances a Tool node can run commands
// against. A shell Tool template type-asserts the wired Runtime instance to
// this interface during Configure.
type Execer interface {
	Exec(ctx context.Context, execID string, spec ExecSpec) (ExecResult, error)
}

// dockerRuntime is the instance a Docker-backed runtime node's Provide
// returns.
type dockerRuntime struct {
	nodeID string
	image  string
	hostWS string

	mu          sync.Mutex
	cli         *client.Client
	containerID string
	started     bool
	notifier    engine.RuntimeNotifier
}

func (r *dockerRuntime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("runtime %q: docker client: %w", r.nodeID, err)
	}

	hostWS, err := os.MkdirTemp("", "agentgraph-runtime-")
	if err != nil {
		return fmt.Errorf("runtime %q: scratch dir: %w", r.nodeID, err)
	}

	if _, _, err := cli.ImageInspectWithRaw(ctx, r.image); err != nil {
		pull, err := cli.ImagePull(ctx, r.image, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("runtime %q: pull %q: %w", r.nodeID, r.image, err)
		}
		_, _ = io.Copy(io.Discard, pull)
		_ = pull.Close()
	}

	hostCfg := &container.HostConfig{
		AutoRemove:  false,
		Privileged:  false,
		NetworkMode: "none",
		Binds:       []string{fmt.Sprintf("%s:%s:rw", hostWS, defaultWorkDir)},
	}
	created, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      r.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: defaultWorkDir,
		Tty:        false,
	}, hostCfg, nil, nil, fmt.Sprintf("agentgraph-%s-%s", r.nodeID, uuid.NewString()[:8]))
	if err != nil {
		return fmt.Errorf("runtime %q: create container: %w", r.nodeID, err)
	}

	if err := cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("runtime %q: start container: %w", r.nodeID, err)
	}

	r.cli = cli
	r.containerID = created.ID
	r.hostWS = hostWS
	r.started = true

	if r.notifier != nil {
		r.notifier.OnRuntimeStart(r.nodeID)
	}
	return nil
}

func (r *dockerRuntime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil
	}
	r.started = false

	timeout := 5
	stopErr := r.cli.ContainerStop(ctx, r.containerID, container.StopOptions{Timeout: &timeout})
	rmErr := r.cli.ContainerRemove(ctx, r.containerID, container.RemoveOptions{Force: true})
	if r.hostWS != "" {
		_ = os.RemoveAll(r.hostWS)
	}

	if r.notifier != nil {
		r.notifier.OnRuntimeStop(r.nodeID)
	}

	if stopErr != nil {
		return fmt.Errorf("runtime %q: stop container: %w", r.nodeID, stopErr)
	}
	return rmErr
}

// SetNotifier satisfies engine.NotifierSetter so GraphService can stream
// exec lifecycle once its graph's GraphStateManager exists.
func (r *dockerRuntime) SetNotifier(sm *engine.GraphStateManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = sm
}

// Exec runs one command inside the runtime's container, tagging the active
// exec with whatever thread/run the calling tool call carries in ctx. A
// cancelled ctx surfaces as the deterministic aborted result rather than an
// error, matching what a stopped agent run needs from an in-flight shell
// call.
func (r *dockerRuntime) Exec(ctx context.Context, execID string, spec ExecSpec) (ExecResult, error) {
	r.mu.Lock()
	cli, containerID, started := r.cli, r.containerID, r.started
	notifier := r.notifier
	r.mu.Unlock()
	if !started {
		return ExecResult{}, fmt.Errorf("runtime %q: not started", r.nodeID)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}

	var exec engine.ActiveExec
	if rc, ok := engine.RunContextFrom(ctx); ok {
		exec = engine.ActiveExec{ThreadID: rc.ThreadID, RunID: rc.RunID, StartedAt: time.Now()}
	} else {
		exec = engine.ActiveExec{StartedAt: time.Now()}
	}
	if notifier != nil {
		notifier.OnRuntimeExecStart(r.nodeID, execID, exec)
	}

	out, errOut, exitCode, timedOut, err := r.execCmd(ctx, cli, containerID, spec, timeout)

	if notifier != nil {
		execErr := ""
		if err != nil {
			execErr = err.Error()
		}
		notifier.OnRuntimeExecEnd(r.nodeID, execID, execErr)
	}

	if timedOut || errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ExecResult{Stdout: "", Stderr: "Aborted", ExitCode: 124, TimedOut: true}, nil
	}
	return ExecResult{Stdout: out, Stderr: errOut, ExitCode: exitCode}, err
}

func (r *dockerRuntime) execCmd(ctx context.Context, cli *client.Client, containerID string, spec ExecSpec, timeout time.Duration) (string, string, int, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd := defaultWorkDir
	if spec.Cwd != "" {
		cwd = path.Join(defaultWorkDir, filepath.ToSlash(spec.Cwd))
	}

	var cmdline strings.Builder
	cmdline.WriteString("cd ")
	cmdline.WriteString(shellQuote(cwd))
	cmdline.WriteString(" && ")
	cmdline.WriteString(shellQuote(spec.Cmd))
	for _, a := range spec.Args {
		cmdline.WriteString(" ")
		cmdline.WriteString(shellQuote(a))
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	ec := container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-lc", cmdline.String()},
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := cli.ContainerExecCreate(tctx, containerID, ec)
	if err != nil {
		return "", "", 0, false, err
	}
	hj, err := cli.ContainerExecAttach(tctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return "", "", 0, false, err
	}
	defer hj.Close()

	var stdout, stderr bytes.Buffer
	_, err = stdcopy.StdCopy(&stdout, &stderr, hj.Reader)
	if err != nil {
		timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
		return stdout.String(), stderr.String(), 0, timedOut, err
	}

	insp, err := cli.ContainerExecInspect(tctx, created.ID)
	timedOut := errors.Is(tctx.Err(), context.DeadlineExceeded)
	if err != nil {
		return stdout.String(), stderr.String(), 0, timedOut, err
	}
	return stdout.String(), stderr.String(), insp.ExitCode, timedOut, nil
}

// PutFile stages one file into the runtime's workspace via CopyToContainer,
// used by a shell Tool template that needs to write a script before
// executing it.
func (r *dockerRuntime) PutFile(ctx context.Context, relPath string, content []byte, mode os.FileMode) error {
	r.mu.Lock()
	cli, containerID, started := r.cli, r.containerID, r.started
	r.mu.Unlock()
	if !started {
		return fmt.Errorf("runtime %q: not started", r.nodeID)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	name := path.Clean(relPath)
	hdr := &tar.Header{Name: name, Mode: int64(mode), Size: int64(len(content)), ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(content); err != nil {
		return err
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return cli.CopyToContainer(ctx, containerID, defaultWorkDir, &buf, container.CopyToContainerOptions{})
}

// PutDirectory stages a host directory into the runtime's workspace.
func (r *dockerRuntime) PutDirectory(ctx context.Context, hostPath string) error {
	r.mu.Lock()
	cli, containerID, started := r.cli, r.containerID, r.started
	r.mu.Unlock()
	if !started {
		return fmt.Errorf("runtime %q: not started", r.nodeID)
	}
	abs, err := filepath.Abs(hostPath)
	if err != nil {
		return err
	}
	rd, err := archive.TarWithOptions(abs, &archive.TarOptions{})
	if err != nil {
		return err
	}
	defer rd.Close()
	return cli.CopyToContainer(ctx, containerID, defaultWorkDir, rd, container.CopyToContainerOptions{})
}

// CollectFile reads one file back out of the runtime's workspace.
func (r *dockerRuntime) CollectFile(ctx context.Context, relPath string) ([]byte, string, error) {
	r.mu.Lock()
	cli, containerID, started := r.cli, r.containerID, r.started
	r.mu.Unlock()
	if !started {
		return nil, "", fmt.Errorf("runtime %q: not started", r.nodeID)
	}

	rc, _, err := cli.CopyFromContainer(ctx, containerID, path.Join(defaultWorkDir, relPath))
	if err != nil {
		return nil, "", err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if err != nil {
			return nil, "", err
		}
		if hdr.FileInfo().IsDir() {
			continue
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil && !errors.Is(err, io.EOF) {
			return nil, "", err
		}
		data := buf.Bytes()
		return data, http.DetectContentType(data), nil
	}
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

type handle struct{}

func (h *handle) Provide(ctx context.Context, init engine.NodeInit) (any, error) {
	img, _ := init.Config["image"].(string)
	if img == "" {
		img = defaultImage
	}
	return &dockerRuntime{nodeID: init.NodeID, image: img}, nil
}

func (h *handle) Configure(ctx context.Context, init engine.NodeInit, instance any, frame *engine.CompileFrame) error {
	return nil
}

func (h *handle) Destroy(ctx context.Context, instance any) error {
	r := instance.(*dockerRuntime)
	return r.Stop(context.Background())
}

// NewTemplate registers the Docker-backed runtime template.
func NewTemplate() *engine.Template {
	return &engine.Template{
		ID:      DockerTemplateID,
		Kind:    engine.NodeKindRuntime,
		Inputs:  nil,
		Outputs: nil,
		Create:  func() engine.NodeHandle { return &handle{} },
	}
}
