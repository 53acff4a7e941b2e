package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/FrederickIge/sentence-samurai-backend/internal/models"
	"github.com/FrederickIge/sentence-samurai-backend/internal/volume"
)

// MokuroEngine shells out to the mokuro CLI, which runs the text-detection
// and transformer OCR models over a volume directory and writes a single
// .mokuro JSON file in the directory's parent.
type MokuroEngine struct {
	binary   string
	cacheDir string
	offline  bool
	forceCPU bool
	device   string
}

// NewMokuroEngine creates the engine and probes for a GPU once.
func NewMokuroEngine(cfg models.OCRConfig) *MokuroEngine {
	e := &MokuroEngine{
		binary:   cfg.Binary,
		cacheDir: cfg.CacheDir,
		offline:  cfg.Offline,
		forceCPU: cfg.ForceCPU,
	}
	if e.binary == "" {
		e.binary = "mokuro"
	}
	if cfg.ForceCPU {
		e.device = "cpu"
	} else {
		e.device = detectGPU()
	}
	return e
}

func (e *MokuroEngine) Name() string { return "mokuro" }

func (e *MokuroEngine) Device() string { return e.device }

// Available verifies the mokuro CLI is on PATH and executable.
func (e *MokuroEngine) Available() error {
	if _, err := exec.LookPath(e.binary); err != nil {
		return fmt.Errorf("mokuro binary %q not found: %w", e.binary, err)
	}
	return nil
}

// ProcessVolume invokes the CLI against the volume directory. Where the
// output lands and what it is named are the CLI's decision; callers recover
// it through volume.LocateAggregate.
func (e *MokuroEngine) ProcessVolume(ctx context.Context, vol *volume.Volume) error {
	args := e.args(vol.Dir)
	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Env = e.env()

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mokuro failed on %s: %w: %s", vol.Dir, err, tail(stderr.String(), 2048))
	}
	return nil
}

// Warmup processes a one-page throwaway volume so the underlying models get
// downloaded into the cache directory. Run during container builds.
func (e *MokuroEngine) Warmup(ctx context.Context) error {
	dir, err := os.MkdirTemp("", "warmup-*")
	if err != nil {
		return fmt.Errorf("create warmup dir: %w", err)
	}
	defer os.RemoveAll(dir)

	vol, err := volume.NewVolume(dir, "warmup", "Warmup", 0, [][]byte{warmupJPEG()})
	if err != nil {
		return err
	}
	return e.ProcessVolume(ctx, vol)
}

func (e *MokuroEngine) args(volumeDir string) []string {
	args := []string{volumeDir, "--disable_confirmation", "--legacy_html=false"}
	if e.forceCPU || e.device == "cpu" {
		args = append(args, "--force_cpu")
	}
	return args
}

// env builds the subprocess environment. The cache-location variables must be
// set before the CLI's Python dependencies import, and offline mode keeps the
// weight-caching library from phoning home when the container image already
// carries the models.
func (e *MokuroEngine) env() []string {
	env := os.Environ()
	if e.cacheDir != "" {
		env = append(env,
			"HF_HOME="+e.cacheDir,
			"TORCH_HOME="+e.cacheDir,
		)
	}
	if e.offline {
		env = append(env,
			"HF_HUB_OFFLINE=1",
			"TRANSFORMERS_OFFLINE=1",
		)
	}
	return env
}

// detectGPU asks nvidia-smi for the first GPU's name; absence of the tool or
// of a GPU means CPU mode.
func detectGPU() string {
	cmd := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "cpu"
	}
	name := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	if name == "" {
		return "cpu"
	}
	return name
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
