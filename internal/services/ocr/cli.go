package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// CLI runs the tesseract executable once per call and parses its TSV output.
type CLI struct {
	path     string
	language string
	tessdata string
}

// NewCLI resolves the tesseract binary. It fails when the binary cannot be
// found so that misconfiguration shows up at startup.
func NewCLI(opts Options) (Engine, error) {
	bin := opts.BinaryPath
	if bin == "" {
		bin = "tesseract"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("tesseract binary not found: %w", err)
	}
	return &CLI{path: path, language: opts.Language, tessdata: opts.TessdataPrefix}, nil
}

func (c *CLI) Name() string { return "cli" }

// Recognize pipes the image to tesseract on stdin. When the legacy engine is
// requested but its models are not installed the call is retried with the
// default engine.
func (c *CLI) Recognize(ctx context.Context, image []byte, cfg Config) ([]Hit, error) {
	hits, err := c.run(ctx, image, cfg)
	if err != nil && ctx.Err() == nil && cfg.EngineMode == OEMLegacy {
		cfg.EngineMode = OEMDefault
		return c.run(ctx, image, cfg)
	}
	return hits, err
}

func (c *CLI) run(ctx context.Context, image []byte, cfg Config) ([]Hit, error) {
	cmd := exec.CommandContext(ctx, c.path, c.args(cfg)...)
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ParseTSV(&stdout)
}

func (c *CLI) args(cfg Config) []string {
	args := []string{
		"stdin", "stdout",
		"--psm", strconv.Itoa(int(cfg.PageSegMode)),
		"--oem", strconv.Itoa(int(cfg.EngineMode)),
	}
	if c.language != "" {
		args = append(args, "-l", c.language)
	}
	if c.tessdata != "" {
		args = append(args, "--tessdata-dir", c.tessdata)
	}
	if cfg.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+cfg.Whitelist)
	}
	return append(args, "tsv")
}

func (c *CLI) Close() error { return nil }
