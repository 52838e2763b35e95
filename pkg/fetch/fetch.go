// Package fetch downloads the third-party generator scripts listed in TOOLS.yml.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Options controls Run
type Options struct {
	// Update records the checksums of the downloaded files in TOOLS.yml instead of rejecting mismatches
	Update bool
	// Vars are merged into the variables from TOOLS.yml
	Vars map[string]string
	// Client defaults to a client with a 30 minute timeout
	Client *http.Client
	// Progress receives the progress bars. If nil, no progress is shown.
	Progress io.Writer
	Logger   *zerolog.Logger
}

// Result lists what Run did for each tool
type Result struct {
	Fetched []string
	Current []string
	Skipped []string
	// Checksums maps tool names to the checksums which were written to TOOLS.yml
	Checksums map[string]string
}

type fetcher struct {
	root   string
	opts   Options
	client *http.Client
	log    *zerolog.Logger
}

// Run downloads every tool from root/TOOLS.yml which isn't installed yet. The stamps are saved even if
// a download fails so that successful downloads aren't repeated.
func Run(ctx context.Context, root string, opts Options) (*Result, error) {
	cfg, cfgData, err := LoadConfig(root)
	if err != nil {
		return nil, err
	}

	stamps, err := LoadStamps(root)
	if err != nil {
		return nil, err
	}

	f := &fetcher{
		root:   root,
		opts:   opts,
		client: opts.Client,
		log:    opts.Logger,
	}
	if f.client == nil {
		f.client = &http.Client{
			Timeout: time.Minute * 30,
		}
	}
	if f.log == nil {
		nop := zerolog.Nop()
		f.log = &nop
	}

	vars := defaultVars()
	for k, v := range cfg.Vars {
		vars[k] = v
	}
	for k, v := range opts.Vars {
		vars[k] = v
	}

	result := &Result{Checksums: map[string]string{}}
	err = f.fetchAll(ctx, cfg, vars, stamps, result)

	sErr := SaveStamps(root, stamps)
	if err == nil {
		err = sErr
	} else if sErr != nil {
		f.log.Error().Err(sErr).Msg("Failed to save stamps")
	}

	if err == nil && len(result.Checksums) > 0 {
		generated, uErr := updateChecksums(cfgData, result.Checksums)
		if uErr != nil {
			return result, uErr
		}

		uErr = ioutil.WriteFile(filepath.Join(root, ConfigFile), generated, 0o644)
		if uErr != nil {
			return result, eris.Wrapf(uErr, "Failed to update %s", ConfigFile)
		}
	}

	return result, err
}

func (f *fetcher) fetchAll(ctx context.Context, cfg *Config, vars, stamps map[string]string, result *Result) error {
	for _, name := range cfg.Names() {
		spec := cfg.Tools[name]

		// The conditions are evaluated even when updating because that also fills in the URL placeholders.
		needed := evalConditions(&spec, vars)
		if !needed && !f.opts.Update {
			result.Skipped = append(result.Skipped, name)
			continue
		}

		destPath := filepath.Join(f.root, spec.Dest)
		_, err := os.Stat(destPath)
		destExists := err == nil

		if stamps[name] == stampToken(spec) && destExists && !f.opts.Update {
			result.Current = append(result.Current, name)
			continue
		}

		if spec.Sha256 == "" && !f.opts.Update {
			return eris.Errorf("Tool %s doesn't have a checksum, run fetch-tools --update to record it", name)
		}

		f.log.Info().Str("tool", name).Str("url", spec.URL).Msg("downloading")
		err = f.fetch(ctx, name, spec, needed, destExists, result)
		if err != nil {
			return eris.Wrapf(err, "Failed to fetch %s", name)
		}

		if needed {
			if digest, ok := result.Checksums[name]; ok {
				spec.Sha256 = digest
			}
			stamps[name] = stampToken(spec)
			result.Fetched = append(result.Fetched, name)
		}
	}

	return nil
}

func (f *fetcher) progressBar(length int64, desc string) *progressbar.ProgressBar {
	if f.opts.Progress == nil || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions64(length,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(f.opts.Progress),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(10),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(f.opts.Progress, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

// download stores the response body in a temporary file and returns it together with its checksum
func (f *fetcher) download(ctx context.Context, url string) (*os.File, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Invalid URL %s", url)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to start download for %s", url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("Download of %s failed with status %s", url, resp.Status)
	}

	handle, err := ioutil.TempFile(f.root, ".tools_dl")
	if err != nil {
		return nil, "", eris.Wrap(err, "Failed to create temporary file")
	}

	hash := sha256.New()
	bar := f.progressBar(resp.ContentLength, "     download")
	_, err = io.Copy(io.MultiWriter(handle, hash, bar), resp.Body)
	if err != nil {
		handle.Close()
		os.Remove(handle.Name())
		return nil, "", eris.Wrapf(err, "Failed during download of %s", url)
	}
	bar.Finish()

	_, err = handle.Seek(0, io.SeekStart)
	if err != nil {
		handle.Close()
		os.Remove(handle.Name())
		return nil, "", eris.Wrap(err, "Failed to rewind download")
	}

	return handle, hex.EncodeToString(hash.Sum(nil)), nil
}

func (f *fetcher) fetch(ctx context.Context, name string, spec ToolSpec, needed, destExists bool, result *Result) error {
	handle, digest, err := f.download(ctx, spec.URL)
	if err != nil {
		return err
	}
	defer func() {
		handle.Close()
		os.Remove(handle.Name())
	}()

	if digest != spec.Sha256 {
		if !f.opts.Update {
			return eris.Errorf("Checksum check failed: expected %s but got %s", spec.Sha256, digest)
		}

		f.log.Info().Str("tool", name).Msg("updating checksum")
		result.Checksums[name] = digest
	}

	if !needed {
		return nil
	}

	destPath := filepath.Join(f.root, spec.Dest)
	if destExists {
		f.log.Debug().Str("tool", name).Str("path", destPath).Msgf("removing %s", destPath)
		err = os.RemoveAll(destPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to remove %s", destPath)
		}
	}

	stat, err := handle.Stat()
	if err != nil {
		return eris.Wrap(err, "Failed to read download size")
	}

	bar := f.progressBar(stat.Size(), "      extract")
	err = getExtractor(spec.URL)(handle, bar, destPath, spec)
	if err != nil {
		return err
	}
	bar.Finish()

	if runtime.GOOS != "windows" {
		// .zip files and plain downloads don't carry permissions
		for _, binPath := range spec.MarkExec {
			binPath = filepath.Join(destPath, binPath)
			fi, err := os.Stat(binPath)
			if err != nil {
				return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
			}

			err = os.Chmod(binPath, fi.Mode()|0o700)
			if err != nil {
				return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
			}
		}
	}

	return nil
}
