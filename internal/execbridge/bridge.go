// Package execbridge implements the upstream Kubernetes pods/exec
// attachment described in spec.md §4.4: shell-candidate fallback, byte
// piping between the client WebSocket and the exec stream, and TTY
// resize propagation.
package execbridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/sealos/tty-agent/internal/kubeconfig"
	"github.com/sealos/tty-agent/internal/ticket"
)

// shellCandidates is the fixed, ordered fallback list from spec.md §4.4.
var shellCandidates = [][]string{
	{"/bin/bash", "-il"},
	{"/usr/bin/bash", "-il"},
	{"bash", "-il"},
	{"/bin/sh", "-i"},
	{"/usr/bin/sh", "-i"},
	{"sh", "-i"},
	{"/bin/ash", "-i"},
	{"/usr/bin/ash", "-i"},
	{"ash", "-i"},
}

// notFoundSubstrings classifies an attempt failure as "command not found",
// the only class of error that triggers fallback to the next candidate.
// Kept narrow on purpose: a broader match like a bare "not found" would
// also catch unrelated upstream failures (a deleted pod, a bad namespace)
// and burn through every remaining shell candidate chasing the wrong
// cause.
var notFoundSubstrings = []string{
	"executable file not found",
	"no such file or directory",
}

func isCommandNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range notFoundSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}

// Status is the translation of a k8s exec stream outcome into the
// passthrough status object spec.md §4.4/§6 describe the upstream
// contract as delivering via its status callback.
type Status struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusSuccess = "Success"
	StatusFailure = "Failure"
)

// StatusCallback receives the terminal status of the exec stream.
type StatusCallback func(Status)

// Handle represents one running (or establishing) exec attachment.
type Handle struct {
	cancel context.CancelFunc
	sink   *ResizableSink
	once   sync.Once
	done   chan struct{}
}

// Close tears down the exec stream and the resizable sink. Safe to call
// more than once and from more than one goroutine.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.cancel()
		h.sink.Done()
		close(h.done)
	})
}

// Wait blocks until Close has run. Close runs on its own once the exec
// stream ends; an earlier explicit Close cancels the stream and releases
// Wait without waiting for the stream goroutine to return.
func (h *Handle) Wait() {
	<-h.done
}

// Bridge opens upstream exec sessions.
type Bridge struct{}

// New builds a Bridge. It carries no state of its own — each Start call
// builds a fresh Kubernetes client from the kubeconfig bytes handed to it.
func New() *Bridge { return &Bridge{} }

// Start attempts to attach to the target container, trying shell
// candidates in order (or the target's explicit command, tried exactly
// once) per spec.md §4.4. It blocks until the attach either succeeds
// (the upstream executor begins pumping stdin) or every candidate has
// been exhausted, then returns a Handle whose underlying stream continues
// running in the background until it ends or Close is called.
//
// stdinChunks delivers inbound stdin bytes (binary frames and decoded
// "stdin" text frames, undistinguished per spec.md §4.4). outSink is the
// outbound byte sink and TTY-size source. Once the Kubernetes client has
// been built, onStatus is invoked exactly once with the terminal
// Success/Failure status: after the stream ends, or, when no attempt
// attached, before Start returns that same error. It is not invoked when
// the client cannot be built.
func (b *Bridge) Start(
	ctx context.Context,
	kubeconfigBytes []byte,
	target ticket.ExecTarget,
	stdinChunks <-chan []byte,
	outSink *ResizableSink,
	onStatus StatusCallback,
) (*Handle, error) {
	restCfg, clientset, err := buildClient(kubeconfigBytes)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client: %w", err)
	}

	candidates, explicit := candidatesFor(target)

	runCtx, cancel := context.WithCancel(ctx)
	handle := &Handle{cancel: cancel, sink: outSink, done: make(chan struct{})}

	established := make(chan struct{})
	var establishedOnce sync.Once
	signalEstablished := func() {
		establishedOnce.Do(func() { close(established) })
	}

	attemptResult := make(chan error, 1)
	var triedNames []string

	go func() {
		defer close(attemptResult)
		var lastErr error

		for _, argv := range candidates {
			triedNames = append(triedNames, strings.Join(argv, " "))

			req := clientset.CoreV1().RESTClient().Post().
				Resource("pods").
				Name(target.Pod).
				Namespace(target.Namespace).
				SubResource("exec").
				VersionedParams(&v1.PodExecOptions{
					Container: target.Container,
					Command:   argv,
					Stdin:     true,
					Stdout:    true,
					Stderr:    true,
					TTY:       true,
				}, scheme.ParameterCodec)

			executor, execErr := remotecommand.NewSPDYExecutor(restCfg, "POST", req.URL())
			if execErr != nil {
				lastErr = execErr
				if explicit {
					break
				}
				continue
			}

			stdin := newStdinPump(runCtx, stdinChunks, signalEstablished)

			streamErr := executor.StreamWithContext(runCtx, remotecommand.StreamOptions{
				Stdin:             stdin,
				Stdout:            outSink,
				Stderr:            outSink,
				Tty:               true,
				TerminalSizeQueue: outSink,
			})

			if streamErr == nil {
				attemptResult <- nil
				return
			}

			lastErr = streamErr
			if explicit || !isCommandNotFound(streamErr) {
				break
			}
			// command-not-found class: fall through to next candidate.
		}

		if lastErr == nil {
			lastErr = fmt.Errorf("no shell candidates available")
		}
		if !explicit && len(candidates) > 1 {
			lastErr = fmt.Errorf("No shell found in container. Tried: %s", strings.Join(triedNames, ", "))
		}
		attemptResult <- lastErr
	}()

	select {
	case <-established:
		go func() {
			err := <-attemptResult
			finish(onStatus, err)
			handle.Close()
		}()
		return handle, nil

	case err := <-attemptResult:
		handle.Close()
		finish(onStatus, err)
		if err != nil {
			return nil, err
		}
		return handle, nil
	}
}

func finish(onStatus StatusCallback, err error) {
	if onStatus == nil {
		return
	}
	if err == nil {
		onStatus(Status{Status: StatusSuccess})
		return
	}
	onStatus(Status{Status: StatusFailure, Message: err.Error()})
}

// candidatesFor resolves the argv vectors to attempt and whether the
// target pinned an explicit command (which disables fallback).
func candidatesFor(target ticket.ExecTarget) (candidates [][]string, explicit bool) {
	if len(target.Command) > 0 {
		return [][]string{target.Command}, true
	}
	return shellCandidates, false
}

func buildClient(raw []byte) (*rest.Config, kubernetes.Interface, error) {
	restCfg, err := kubeconfig.RESTConfig(raw)
	if err != nil {
		return nil, nil, err
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create clientset: %w", err)
	}
	return restCfg, clientset, nil
}
