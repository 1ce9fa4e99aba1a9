package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ASK1E/SASTRA/internal/interpret"
	"github.com/ASK1E/SASTRA/internal/mocks"
	"github.com/ASK1E/SASTRA/internal/model"
	"github.com/ASK1E/SASTRA/internal/runner"
	"github.com/ASK1E/SASTRA/internal/scanners"
	"github.com/ASK1E/SASTRA/internal/security"
	"github.com/ASK1E/SASTRA/internal/workspace"
)

const pySource = "import subprocess\nsubprocess.call('ls', shell=True)\n"

func newOrchestrator(t *testing.T, invoker Invoker, sniff bool) (*Orchestrator, string) {
	t.Helper()
	tool, err := scanners.Lookup("bandit")
	require.NoError(t, err)

	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := Config{Policy: security.NewPolicy([]string{"py"}, 1024), SniffContent: sniff}
	return New(log, cfg, workspace.NewManager(dir), invoker, interpret.ForTool(tool)), dir
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries, "workspace files leaked")
}

func TestOrchestrator_Scan(t *testing.T) {
	tests := []struct {
		description string
		output      func(path string) runner.Output
		invokeErr   error
		wantKind    model.ResultKind
		wantErr     error
	}{
		{
			description: "Should return findings and remove the workspace",
			output: func(path string) runner.Output {
				return runner.Output{ExitCode: 1, Stdout: []byte(fmt.Sprintf(
					`{"results": [{"filename": %q, "issue_severity":"HIGH","line_number":2,"test_id":"B602","issue_text":"shell=True"}]}`, path))}
			},
			wantKind: model.ResultSuccess,
		},
		{
			description: "Should remove the workspace on a tool error",
			output: func(string) runner.Output {
				return runner.Output{ExitCode: 2, Stderr: []byte("no such file")}
			},
			wantKind: model.ResultToolError,
		},
		{
			description: "Should remove the workspace on a parse error",
			output: func(string) runner.Output {
				return runner.Output{ExitCode: 0, Stdout: []byte("not json")}
			},
			wantKind: model.ResultParseError,
		},
		{
			description: "Should remove the workspace on timeout",
			output:      func(string) runner.Output { return runner.Output{} },
			invokeErr:   runner.ErrTimedOut,
			wantErr:     runner.ErrTimedOut,
		},
		{
			description: "Should remove the workspace when the request is cancelled",
			output:      func(string) runner.Output { return runner.Output{} },
			invokeErr:   context.Canceled,
			wantErr:     context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			invoker := mocks.NewMockInvoker(ctrl)
			orch, dir := newOrchestrator(t, invoker, false)

			invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, path string) (runner.Output, error) {
					content, err := os.ReadFile(path)
					req.NoError(err)
					req.Equal(pySource, string(content))
					return tt.output(path), tt.invokeErr
				}).Times(1)

			res, err := orch.Scan(context.Background(), model.UploadRequest{Filename: "app.py", Content: []byte(pySource)})
			requireEmptyDir(t, dir)

			if tt.wantErr != nil {
				req.ErrorIs(err, tt.wantErr)
				return
			}
			req.NoError(err)
			req.Equal(tt.wantKind, res.Kind)
		})
	}
}

func TestOrchestrator_ScanAttributesFindingsToUpload(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	invoker := mocks.NewMockInvoker(ctrl)
	orch, _ := newOrchestrator(t, invoker, false)

	var workspacePath string
	invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path string) (runner.Output, error) {
			workspacePath = path
			return runner.Output{ExitCode: 1, Stdout: []byte(fmt.Sprintf(
				`{"results": [{"filename": %q, "issue_severity":"HIGH","line_number":2,"test_id":"B602","issue_text":"shell=True"}],
				  "errors": [{"filename": %q, "reason": "partial"}]}`, path, path))}, nil
		})

	res, err := orch.Scan(context.Background(), model.UploadRequest{Filename: "../../etc/app.py", Content: []byte(pySource)})
	req.NoError(err)
	req.Len(res.Findings, 1)
	req.Equal("app.py", res.Findings[0].File)
	req.NotContains(res.Findings[0].File, workspacePath)
	req.Equal(model.SeverityHigh, res.Findings[0].Severity)
}

func TestOrchestrator_ConcurrentScansStayIsolated(t *testing.T) {
	const workers = 16
	ctrl := gomock.NewController(t)
	invoker := mocks.NewMockInvoker(ctrl)
	orch, dir := newOrchestrator(t, invoker, true)

	var paths sync.Map
	invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path string) (runner.Output, error) {
			if _, dup := paths.LoadOrStore(path, struct{}{}); dup {
				return runner.Output{}, fmt.Errorf("workspace %s handed out twice", path)
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return runner.Output{}, err
			}
			// Echo the file back so each caller can check it got its own bytes.
			return runner.Output{ExitCode: 1, Stdout: []byte(fmt.Sprintf(
				`{"results": [{"filename": %q, "issue_severity":"LOW","line_number":1,"test_id":"B101","issue_text":%q}]}`,
				path, strings.TrimSpace(string(content))))}, nil
		}).Times(workers)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := fmt.Sprintf("worker_%d = %d", i, i)
			res, err := orch.Scan(context.Background(), model.UploadRequest{
				Filename: fmt.Sprintf("app%d.py", i),
				Content:  []byte(source + "\n"),
			})
			switch {
			case err != nil:
				errs <- err
			case len(res.Findings) != 1:
				errs <- fmt.Errorf("worker %d: got %d findings", i, len(res.Findings))
			case res.Findings[0].Description != source:
				errs <- fmt.Errorf("worker %d: scanned %q", i, res.Findings[0].Description)
			case res.Findings[0].File != fmt.Sprintf("app%d.py", i):
				errs <- fmt.Errorf("worker %d: attributed to %q", i, res.Findings[0].File)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	requireEmptyDir(t, dir)
}

func TestOrchestrator_RejectsBeforeWorkspace(t *testing.T) {
	tests := []struct {
		description string
		upload      model.UploadRequest
		sniff       bool
		want        security.Reason
	}{
		{"Should reject an executable", model.UploadRequest{Filename: "malware.exe", Content: []byte("MZ")}, false, security.DisallowedExtension},
		{"Should reject a file without extension", model.UploadRequest{Filename: "script", Content: []byte("x")}, false, security.NoExtension},
		{"Should reject oversize content", model.UploadRequest{Filename: "big.py", Content: make([]byte, 1025)}, false, security.TooLarge},
		{"Should reject an understated declared size", model.UploadRequest{Filename: "big.py", Content: make([]byte, 2048), Size: 10}, false, security.TooLarge},
		{"Should reject binary content when sniffing", model.UploadRequest{Filename: "x.py", Content: append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, make([]byte, 56)...)}, true, security.BinaryContent},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			req := require.New(t)
			ctrl := gomock.NewController(t)
			// No expectations: any call to the invoker fails the test.
			invoker := mocks.NewMockInvoker(ctrl)
			orch, dir := newOrchestrator(t, invoker, tt.sniff)

			_, err := orch.Scan(context.Background(), tt.upload)
			var rejection *security.RejectionError
			req.ErrorAs(err, &rejection)
			req.Equal(tt.want, rejection.Reason)
			requireEmptyDir(t, dir)
		})
	}
}

func TestOrchestrator_SpawnFailureFailsFast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	invoker := mocks.NewMockInvoker(ctrl)
	orch, dir := newOrchestrator(t, invoker, false)
	upload := model.UploadRequest{Filename: "app.py", Content: []byte(pySource)}
	spawnErr := fmt.Errorf("%w: bandit: executable file not found", runner.ErrSpawnFailed)

	gomock.InOrder(
		invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(runner.Output{}, spawnErr),
		invoker.EXPECT().Probe(gomock.Any()).Return(spawnErr),
		invoker.EXPECT().Probe(gomock.Any()).Return(nil),
		invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(runner.Output{ExitCode: 0}, nil),
	)

	_, err := orch.Scan(context.Background(), upload)
	req.ErrorIs(err, runner.ErrSpawnFailed)

	_, err = orch.Scan(context.Background(), upload)
	req.ErrorIs(err, ErrScannerUnavailable)
	req.True(errors.Is(err, runner.ErrSpawnFailed))
	requireEmptyDir(t, dir)

	res, err := orch.Scan(context.Background(), upload)
	req.NoError(err)
	req.True(res.OK())
	req.Empty(res.Findings)
}

func TestOrchestrator_StartupProbe(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	invoker := mocks.NewMockInvoker(ctrl)
	orch, _ := newOrchestrator(t, invoker, false)

	invoker.EXPECT().Probe(gomock.Any()).Return(runner.ErrSpawnFailed).Times(2)

	req.ErrorIs(orch.Probe(context.Background()), runner.ErrSpawnFailed)
	req.ErrorIs(orch.Available(context.Background()), ErrScannerUnavailable)
}

func TestDisplayName(t *testing.T) {
	req := require.New(t)
	req.Equal("app.py", DisplayName("app.py"))
	req.Equal("app.py", DisplayName("/etc/../app.py"))
	req.Equal("app.py", DisplayName(`C:\Users\me\app.py`))
	req.Equal("", DisplayName(""))
}

func TestScanID(t *testing.T) {
	ctx := WithScanID(context.Background(), "abc")
	require.Equal(t, "abc", ScanID(ctx))
	require.Equal(t, "", ScanID(context.Background()))
}
