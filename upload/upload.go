// Package upload drives batches of PDF files to a PACS over a single
// association.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Algernon72/PDF2PACS/client"
	"github.com/Algernon72/PDF2PACS/dicom"
	"github.com/Algernon72/PDF2PACS/dimse"
	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/uid"
)

// Status classifies the outcome of one file.
type Status int

const (
	StatusSuccess Status = iota
	StatusWarning
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one file in a batch.
type Result struct {
	FilePath       string
	SOPInstanceUID string
	Status         Status
	Detail         string
}

// Report is the outcome of a whole batch. Err is set when the batch ended
// early: connection failure, rejection, lost association or cancellation.
// Results holds one entry per file attempted before the batch ended.
type Report struct {
	Results []Result
	Err     error
}

// Counts returns the number of successes, warnings and failures.
func (r *Report) Counts() (success, warning, failure int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			success++
		case StatusWarning:
			warning++
		default:
			failure++
		}
	}
	return success, warning, failure
}

// Target identifies the receiving PACS.
type Target struct {
	Host           string
	Port           int
	CalledAETitle  string
	CallingAETitle string
}

// Validate checks that the target is complete.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return errors.New("target host is required")
	}
	if t.Port < 1 || t.Port > 65535 {
		return fmt.Errorf("target port %d out of range", t.Port)
	}
	if strings.TrimSpace(t.CalledAETitle) == "" {
		return errors.New("called AE title is required")
	}
	if strings.TrimSpace(t.CallingAETitle) == "" {
		return errors.New("calling AE title is required")
	}
	return nil
}

// Addr returns the host:port dial address.
func (t Target) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Options configures an Uploader.
type Options struct {
	// Metadata applies to every file in the batch; the document title
	// defaults to each file's name without extension.
	Metadata dicom.Input
	// Defaults fills metadata fields the input leaves empty.
	Defaults dicom.Defaults
	// UIDs overrides the UID generator (default: random).
	UIDs uid.Generator
	// SeriesPerFile puts each file in its own series instead of sharing
	// one series across the batch.
	SeriesPerFile bool
	// VerifyFirst runs a C-ECHO before the first store.
	VerifyFirst bool

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxPDULength   uint32

	Logger *slog.Logger
	// Clock overrides the time source (default: time.Now).
	Clock func() time.Time
	// ReadFile overrides how file contents are loaded (default: os.ReadFile).
	ReadFile func(path string) ([]byte, error)
	// OnResult, when set, is called after each file completes.
	OnResult func(Result)
	// OnComplete, when set, is called with the final report before Run
	// returns, on every exit path.
	OnComplete func(Report)
}

// Uploader sends batches of PDF files to one PACS target.
type Uploader struct {
	target Target
	opts   Options
	logger *slog.Logger
}

// New validates the target and builds an Uploader.
func New(target Target, opts Options) (*Uploader, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Metadata.PatientID == "" {
		opts.Metadata.PatientID = dicom.GeneratePatientID(opts.Clock())
	}
	return &Uploader{target: target, opts: opts, logger: opts.Logger}, nil
}

// Run uploads the given files over a single association. All files share
// one study; per-file failures are recorded and the batch continues, but a
// rejected association, a lost connection or cancellation ends the batch
// with Report.Err set and the remaining files untouched.
func (u *Uploader) Run(ctx context.Context, paths []string) Report {
	var report Report
	defer func() {
		if u.opts.OnComplete != nil {
			u.opts.OnComplete(report)
		}
	}()

	resolverOpts := []dicom.ResolverOption{dicom.WithClock(u.opts.Clock)}
	if u.opts.SeriesPerFile {
		resolverOpts = append(resolverOpts, dicom.WithSeriesPerObject())
	}
	resolver := dicom.NewResolver(u.opts.Defaults, u.opts.UIDs, resolverOpts...)

	assoc, err := client.Connect(u.target.Addr(), client.Config{
		CallingAETitle:      u.target.CallingAETitle,
		CalledAETitle:       u.target.CalledAETitle,
		MaxPDULength:        u.opts.MaxPDULength,
		ConnectTimeout:      u.opts.ConnectTimeout,
		ReadTimeout:         u.opts.ReadTimeout,
		WriteTimeout:        u.opts.WriteTimeout,
		Logger:              u.logger,
		ProposeVerification: u.opts.VerifyFirst,
	})
	if err != nil {
		u.logger.Error("failed to open association", "target", u.target.Addr(), "error", err)
		report.Err = err
		return report
	}
	defer assoc.Close()

	if u.opts.VerifyFirst {
		if err := assoc.SendCEcho(); err != nil {
			u.logger.Error("verification failed", "error", err)
			report.Err = err
			return report
		}
	}

	study := resolver.StudyInstanceUID()
	u.logger.Info("batch started",
		"target", u.target.Addr(),
		"files", len(paths),
		"study_uid", study)

	for _, path := range paths {
		if ctx.Err() != nil {
			report.Err = ctx.Err()
			u.logger.Warn("batch cancelled", "remaining", len(paths)-len(report.Results))
			return report
		}

		result, fatal := u.sendOne(assoc, resolver, path)
		report.Results = append(report.Results, result)
		if u.opts.OnResult != nil {
			u.opts.OnResult(result)
		}
		if fatal != nil {
			report.Err = fatal
			u.logger.Error("batch aborted", "file", path, "error", fatal)
			return report
		}
	}

	success, warning, failure := report.Counts()
	u.logger.Info("batch finished",
		"success", success,
		"warning", warning,
		"failure", failure)
	return report
}

// sendOne processes a single file. A non-nil fatal error means the
// association is unusable and the batch must stop.
func (u *Uploader) sendOne(assoc *client.Association, resolver *dicom.Resolver, path string) (Result, error) {
	result := Result{FilePath: path}

	data, err := u.opts.ReadFile(path)
	if err != nil {
		result.Status = StatusFailure
		result.Detail = fmt.Sprintf("read failed: %v", err)
		return result, nil
	}

	input := u.opts.Metadata
	if input.DocumentTitle == "" {
		input.DocumentTitle = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	meta, err := resolver.Resolve(input)
	if err != nil {
		result.Status = StatusFailure
		result.Detail = err.Error()
		return result, nil
	}

	obj, err := dicom.EncapsulatePDF(data, meta)
	if err != nil {
		result.Status = StatusFailure
		result.Detail = err.Error()
		return result, nil
	}
	result.SOPInstanceUID = obj.SOPInstanceUID()

	resp, err := assoc.SendCStore(obj)
	if err != nil {
		result.Status = StatusFailure
		if errors.Is(err, dcmerr.ErrAssociationLost) {
			result.Detail = "association lost"
			return result, err
		}
		if errors.Is(err, dcmerr.ErrNoPresentationContext) {
			result.Detail = err.Error()
			return result, err
		}
		result.Detail = err.Error()
		return result, nil
	}

	switch {
	case dimse.IsSuccess(resp.Status):
		result.Status = StatusSuccess
	case dimse.IsWarning(resp.Status):
		result.Status = StatusWarning
		result.Detail = fmt.Sprintf("stored with warning status 0x%04X", resp.Status)
	default:
		result.Status = StatusFailure
		result.Detail = fmt.Sprintf("peer returned status 0x%04X", resp.Status)
	}

	u.logger.Debug("file processed",
		"file", path,
		"status", result.Status.String(),
		"sop_instance", result.SOPInstanceUID)
	return result, nil
}
