package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	bidsonym "github.com/PeerHerholz/BIDSonym"
	"github.com/PeerHerholz/BIDSonym/report"
)

func copyWithPrefix(prefix, in, out string) error {
	b, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte(prefix), b...), 0o644)
}

type fakeDefacer struct{ fail bool }

func (f fakeDefacer) Deface(_ context.Context, in, out, _ string) error {
	if f.fail {
		// a crashing tool leaves a truncated file behind
		_ = os.WriteFile(out, []byte("garbage"), 0o644)
		return bidsonym.ExternalToolError.New("defacer exited with status 1")
	}
	return copyWithPrefix("defaced:", in, out)
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, in, out string) error {
	return copyWithPrefix("brain:", in, out)
}

type fakeRegistrar struct{}

func (fakeRegistrar) Register(_ context.Context, moving, _, out string) error {
	return copyWithPrefix("reg:", moving, out)
}

type fakeMasker struct{}

func (fakeMasker) Mask(_ context.Context, in, _, out string) error {
	return copyWithPrefix("masked:", in, out)
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls [][2]string
}

func (f *fakeRenderer) Render(path, mask, outDir string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [2]string{path, mask})
	f.mu.Unlock()

	out := filepath.Join(outDir, report.AnimationName(path))
	return []string{out}, os.WriteFile(out, []byte("gif"), 0o644)
}

type fakeValidator struct {
	err      error
	selected []string
}

func (f *fakeValidator) Validate(_ context.Context, _ string, _, selected []string) error {
	f.selected = selected
	return f.err
}
