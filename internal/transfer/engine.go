// Package transfer moves one remote file to local disk. It resolves the
// download redirect, resumes from a .part file with byte ranges, streams the
// body in fixed-size chunks and verifies the content hash afterwards.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"civitdl/internal/civitai"
	"civitdl/internal/common/fsutil"
	"civitdl/internal/metrics"
	"civitdl/internal/registry"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultChunkSize        = 1638400
	DefaultProgressInterval = 250 * time.Millisecond

	// PartSuffix marks the in-progress file next to its destination.
	PartSuffix = registry.PartSuffix

	staleSlackBytes = 1 << 20
)

// Target is what to fetch. Filename is used only when the redirect does not
// reveal one. ExpectedSize <= 0 means unknown.
type Target struct {
	URL          string
	Filename     string
	ExpectedSize int64
	ExpectedHash Hash
}

// Request is one transfer. Dir maps the resolved filename to the destination
// directory, which is created if missing. An existing destination is
// replaced when Overwrite is set or Confirm agrees, and skipped otherwise.
type Request struct {
	Target    Target
	Dir       func(filename string) (string, error)
	Overwrite bool
	Confirm   Confirmer
}

// Result describes a finished or skipped transfer.
type Result struct {
	Path string
	// Bytes received in this invocation; Size is the final file size.
	Bytes   int64
	Size    int64
	Resumed bool
	Skipped bool
	Verify  Verification
}

// Confirmer decides whether an existing destination may be replaced.
type Confirmer interface {
	ConfirmOverwrite(path string) (bool, error)
}

// Config configures an Engine. Token authenticates only the redirect
// resolution request.
type Config struct {
	HTTPClient       *http.Client
	Token            string
	UserAgent        string
	ChunkSize        int
	ProgressInterval time.Duration
	Progress         ProgressSink
	Metrics          *metrics.Recorder
	Logger           *zerolog.Logger
	// DiskFree reports free bytes for a directory. Defaults to gopsutil.
	DiskFree func(dir string) (uint64, error)
}

// Engine runs transfers one at a time.
type Engine struct {
	http      *http.Client
	token     string
	userAgent string
	chunk     int
	interval  time.Duration
	sink      ProgressSink
	metrics   *metrics.Recorder
	log       zerolog.Logger
	diskFree  func(dir string) (uint64, error)
}

// New constructs an Engine from cfg, applying defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		http:      cfg.HTTPClient,
		token:     cfg.Token,
		userAgent: cfg.UserAgent,
		chunk:     cfg.ChunkSize,
		interval:  cfg.ProgressInterval,
		sink:      cfg.Progress,
		metrics:   cfg.Metrics,
		log:       zerolog.Nop(),
		diskFree:  cfg.DiskFree,
	}
	if e.http == nil {
		// No overall timeout: bodies can take hours.
		e.http = &http.Client{}
	}
	if e.userAgent == "" {
		e.userAgent = civitai.DefaultUserAgent
	}
	if e.chunk <= 0 {
		e.chunk = DefaultChunkSize
	}
	if e.interval <= 0 {
		e.interval = DefaultProgressInterval
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	if e.diskFree == nil {
		e.diskFree = volumeFree
	}
	if cfg.Logger != nil {
		e.log = *cfg.Logger
	}
	return e
}

// Resolve asks the download endpoint for the content location without
// following the redirect and derives the filename from it. The filename is
// empty when the location carries none.
func (e *Engine) Resolve(ctx context.Context, rawURL string) (location, filename string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("transfer: build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	client := *e.http
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("transfer: resolve download url: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		loc, err := resp.Location()
		if err != nil {
			return "", "", &UnexpectedStatusError{Code: resp.StatusCode, Message: "redirect without location"}
		}
		return loc.String(), filenameFromURL(loc), nil
	case http.StatusNotFound:
		return "", "", &NotFoundError{URL: rawURL}
	case http.StatusUnauthorized:
		return "", "", &UnauthorizedError{Message: readMessage(resp.Body)}
	default:
		return "", "", &UnexpectedStatusError{Code: resp.StatusCode, Message: readMessage(resp.Body)}
	}
}

// Transfer fetches req.Target into its destination directory. On any
// failure after streaming started the .part file is kept for the next run.
// A hash mismatch is reported in Result.Verify and is not an error.
func (e *Engine) Transfer(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	defer func() {
		outcome := metrics.ResultFailed
		switch {
		case err == nil && res.Skipped:
			outcome = metrics.ResultSkipped
		case err == nil:
			outcome = metrics.ResultOK
		case errors.Is(err, context.Canceled):
			outcome = metrics.ResultCanceled
		}
		e.metrics.TransferDone(outcome, time.Since(start))
	}()

	tgt := req.Target
	tr := &throttle{sink: e.sink, interval: e.interval, start: start, total: -1}
	tr.emit(StateResolving, 0, true)

	loc, name, err := e.Resolve(ctx, tgt.URL)
	if err != nil {
		return res, err
	}
	if name == "" {
		name = sanitizeFilename(tgt.Filename)
	}
	if name == "" {
		return res, fmt.Errorf("transfer: %s: %w", redact(loc), errNoFilename)
	}
	tr.filename = name

	var dir string
	if req.Dir != nil {
		if dir, err = req.Dir(name); err != nil {
			return res, err
		}
	}
	if dir == "" {
		dir = "."
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		return res, &IOError{Op: "create directory", Path: dir, Err: err}
	}
	dest := filepath.Join(dir, name)
	res.Path = dest
	log := e.log.With().Str("file", name).Str("dest", dest).Logger()

	if !req.Overwrite && fsutil.PathExists(dest) {
		ok := false
		if req.Confirm != nil {
			if ok, err = req.Confirm.ConfirmOverwrite(dest); err != nil {
				return res, err
			}
		}
		if !ok {
			log.Info().Msg("file already exists, skipping")
			res.Skipped = true
			return res, nil
		}
	}

	total := tgt.ExpectedSize
	if total <= 0 {
		tr.emit(StateSizeProbing, 0, true)
		total = e.probeSize(ctx, loc)
	}
	part := dest + PartSuffix
	offset := e.resumeOffset(part, total, log)
	if total > 0 {
		if err := e.checkSpace(dir, total-offset); err != nil {
			return res, err
		}
	}

	resp, err := e.openContent(ctx, loc, offset)
	if isRangeRejected(err) {
		log.Warn().Err(err).Int64("offset", offset).Msg("range request rejected, restarting from zero")
		e.metrics.RangeRestart()
		if rmErr := os.Remove(part); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			return res, &IOError{Op: "remove partial", Path: part, Err: rmErr}
		}
		offset = 0
		resp, err = e.openContent(ctx, loc, 0)
	}
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPartialContent {
		res.Resumed = true
		e.metrics.Resumed()
	} else if offset > 0 {
		log.Warn().Int64("offset", offset).Msg("server ignored range request, restarting from zero")
		e.metrics.RangeRestart()
		offset = 0
	}
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if offset > 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return res, &IOError{Op: "open partial", Path: part, Err: err}
	}
	log.Debug().Int64("offset", offset).Int64("total", total).Msg("streaming")

	tr.base, tr.total = offset, total
	tr.emit(StateStreaming, offset, true)
	done, err := e.stream(ctx, resp.Body, f, tr, offset)
	res.Bytes = done - offset
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &IOError{Op: "close partial", Path: part, Err: cerr}
	}
	if err != nil {
		log.Warn().Err(err).Int64("downloaded", done).Msg("transfer interrupted, partial file kept")
		return res, err
	}
	if tr.total < 0 {
		tr.total = done
	}
	tr.emit(StateStreaming, done, true)

	if err := os.Rename(part, dest); err != nil {
		return res, &IOError{Op: "rename", Path: part, Err: err}
	}
	res.Size = done

	if !tgt.ExpectedHash.IsZero() {
		tr.emit(StateVerifying, done, true)
		v, verr := VerifyFile(dest, tgt.ExpectedHash)
		if verr != nil {
			log.Warn().Err(verr).Msg("hash verification could not run")
		} else {
			e.metrics.HashChecked(v.OK)
			if !v.OK {
				log.Warn().Str("algorithm", string(v.Algorithm)).Str("expected", v.Expected).Str("actual", v.Actual).Msg("hash mismatch, file kept")
			}
		}
		res.Verify = v
	}
	tr.emit(StateDone, done, true)
	log.Info().Int64("bytes", done).Bool("resumed", res.Resumed).Msg("transfer complete")
	return res, nil
}

// openContent issues the content GET. Authorization is never sent here:
// pre-signed storage URLs reject a second auth mechanism.
func (e *Engine) openContent(ctx context.Context, loc string, offset int64) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, fmt.Errorf("transfer: build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transfer: request content: %w", err)
	}
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent {
		return resp, nil
	}
	defer resp.Body.Close()
	msg := readMessage(resp.Body)
	switch {
	case offset > 0 && (resp.StatusCode == http.StatusRequestedRangeNotSatisfiable || resp.StatusCode == http.StatusBadRequest):
		return nil, &rangeRejectedError{Code: resp.StatusCode}
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &UnauthorizedError{Message: msg}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{URL: redact(loc)}
	default:
		return nil, &UnexpectedStatusError{Code: resp.StatusCode, Message: msg}
	}
}

// stream copies body into f chunk by chunk. Each chunk is written before the
// next read so the partial file always reflects what was received.
func (e *Engine) stream(ctx context.Context, body io.Reader, f *os.File, tr *throttle, done int64) (int64, error) {
	buf := make([]byte, e.chunk)
	for {
		n, rerr := fill(body, buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return done, &IOError{Op: "write", Path: f.Name(), Err: werr}
			}
			done += int64(n)
			e.metrics.AddBytes(n)
			tr.emit(StateStreaming, done, false)
		}
		switch {
		case rerr == nil:
			continue
		case ctx.Err() != nil:
			return done, &IOError{Op: "read", Path: f.Name(), Err: ctx.Err()}
		case rerr == io.EOF:
			return done, nil
		default:
			return done, &IOError{Op: "read", Path: f.Name(), Err: rerr}
		}
	}
}

// fill reads until buf is full or the reader fails. Unlike io.ReadFull it
// passes io.EOF through after a short read.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// resumeOffset returns the size of a usable partial file, discarding one
// that is larger than the expected total allows.
func (e *Engine) resumeOffset(part string, total int64, log zerolog.Logger) int64 {
	size, ok := fsutil.FileSize(part)
	if !ok || size <= 0 {
		return 0
	}
	if total > 0 && float64(size) > float64(total)*1.1+staleSlackBytes {
		log.Warn().Int64("offset", size).Int64("total", total).Msg("discarding stale partial file")
		if err := os.Remove(part); err != nil {
			log.Debug().Err(err).Msg("remove stale partial")
		}
		return 0
	}
	log.Info().Int64("offset", size).Msg("resuming partial download")
	return size
}

// probeSize asks for Content-Length with a HEAD request. It returns -1 when
// the size stays unknown.
func (e *Engine) probeSize(ctx context.Context, loc string) int64 {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, loc, nil)
	if err != nil {
		return -1
	}
	req.Header.Set("User-Agent", e.userAgent)
	resp, err := e.http.Do(req)
	if err != nil {
		e.log.Debug().Err(err).Msg("size probe failed")
		return -1
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.ContentLength <= 0 {
		return -1
	}
	return resp.ContentLength
}

func (e *Engine) checkSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	free, err := e.diskFree(dir)
	if err != nil {
		e.log.Debug().Err(err).Str("dir", dir).Msg("free space check unavailable")
		return nil
	}
	if free < uint64(need) {
		return &IOError{Op: "preflight", Path: dir, Err: fmt.Errorf("%w: need %d bytes, %d free", ErrInsufficientSpace, need, free)}
	}
	return nil
}

func volumeFree(dir string) (uint64, error) {
	u, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// filenameFromURL prefers the response-content-disposition query parameter
// set on pre-signed storage URLs, then the last path segment.
func filenameFromURL(u *url.URL) string {
	if cd := u.Query().Get("response-content-disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := sanitizeFilename(params["filename"]); name != "" {
				return name
			}
		}
		if _, after, ok := strings.Cut(cd, "filename="); ok {
			if v, err := url.QueryUnescape(strings.Trim(after, `"' `)); err == nil {
				after = v
			}
			if name := sanitizeFilename(strings.Trim(after, `"' `)); name != "" {
				return name
			}
		}
	}
	return sanitizeFilename(path.Base(u.Path))
}

// sanitizeFilename strips any directory components.
func sanitizeFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

// redact drops the query string, which holds storage signatures.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func readMessage(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return civitai.ServerMessage(body)
}
