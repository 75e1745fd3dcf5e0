package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ankyy/musicbox/pkg/logger"
)

var log = logger.Get("YtDlp")

type Config struct {
	// BinaryPath is the yt-dlp executable; resolved via $PATH when bare.
	BinaryPath string `yaml:"binary_path" env:"YTDLP_BINARY_PATH" env-default:"yt-dlp"`

	// CookieFile, when it exists on disk, is forwarded to the tool so that
	// age/region restricted media can be fetched with the session it holds.
	CookieFile string `yaml:"cookie_file" env:"YTDLP_COOKIE_FILE"`

	// ToolTimeoutSeconds bounds a single invocation. The scheduler imposes
	// no timeout of its own, so this is the only protection against a
	// wedged external process pinning a concurrency slot.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds" env:"YTDLP_TOOL_TIMEOUT_SECONDS" env-default:"1800"`
}

// UpstreamError wraps a failed or unparseable yt-dlp invocation. The
// captured stderr is for the logs only; user-facing surfaces must not leak
// it.
type UpstreamError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("yt-dlp %s failed: %v (stderr: %s)", e.Op, e.Err, e.Stderr)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Client drives the external yt-dlp binary. A single client is shared by
// all pipeline workers; it holds no per-invocation state.
type Client struct {
	config Config
}

func NewClient(config Config) *Client {
	return &Client{config: config}
}

// Probe runs the tool in metadata-only mode against the URL provided and
// returns the normalized metadata. No media is fetched.
func (client *Client) Probe(ctx context.Context, url string) (*MediaMetadata, error) {
	stdout, err := client.execute(ctx, "probe", url, "--dump-json", "--no-playlist", "--no-warnings")
	if err != nil {
		return nil, err
	}

	var raw rawMetadata
	if jsonErr := json.Unmarshal(stdout, &raw); jsonErr != nil {
		return nil, &UpstreamError{Op: "probe", Err: fmt.Errorf("malformed metadata output: %w", jsonErr)}
	}

	meta := normalizeMetadata(&raw, url)
	return &meta, nil
}

// ProbePlaylist runs a flat playlist probe, returning the playlist title and
// the individual entries without resolving any of them.
func (client *Client) ProbePlaylist(ctx context.Context, url string) (*Playlist, error) {
	stdout, err := client.execute(ctx, "playlist-probe", url, "--flat-playlist", "--dump-single-json", "--no-warnings")
	if err != nil {
		return nil, err
	}

	var raw rawPlaylist
	if jsonErr := json.Unmarshal(stdout, &raw); jsonErr != nil {
		return nil, &UpstreamError{Op: "playlist-probe", Err: fmt.Errorf("malformed playlist output: %w", jsonErr)}
	}

	playlist := normalizePlaylist(&raw)
	return &playlist, nil
}

// Fetch performs a full download/convert using the arguments composed by
// FetchArgs. At most one attempt is made; retries are the callers concern.
func (client *Client) Fetch(ctx context.Context, args []string) error {
	_, err := client.execute(ctx, "fetch", args...)
	return err
}

// FetchArgs composes the full invocation argument list for a fetch of the
// URL in to the output template provided. The cookie file is attached only
// when it actually exists on disk.
func (client *Client) FetchArgs(url string, outputTemplate string, kind TargetKind, quality Quality, effect Effect) []string {
	args := []string{
		url,
		"-o", outputTemplate,
		"--no-playlist",
		"--force-overwrites",
		"--add-metadata",
		"--embed-thumbnail",
	}

	if client.config.CookieFile != "" {
		if _, err := os.Stat(client.config.CookieFile); err == nil {
			args = append(args, "--cookies", client.config.CookieFile)
		}
	}

	switch kind {
	case KindVideo:
		args = append(args, "-f", FormatSelector(quality), "--merge-output-format", "mp4")
	default:
		args = append(args, "-x", "--audio-format", "mp3")
	}

	if filter := AudioFilter(effect); filter != "" {
		args = append(args, "--postprocessor-args", fmt.Sprintf(`ffmpeg:-af "%s"`, filter))
	}

	return args
}

func (client *Client) execute(parentCtx context.Context, op string, args ...string) ([]byte, error) {
	ctx := parentCtx
	if client.config.ToolTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, time.Duration(client.config.ToolTimeoutSeconds)*time.Second)
		defer cancel()
	}

	log.Debugf("Invoking %s %v\n", client.config.BinaryPath, args)
	cmd := exec.CommandContext(ctx, client.config.BinaryPath, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &UpstreamError{Op: op, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}
