package dicom

import (
	"fmt"
	"strings"
	"time"

	dcmerr "github.com/Algernon72/PDF2PACS/errors"
	"github.com/Algernon72/PDF2PACS/uid"
)

// ObjectMetadata is the fully resolved attribute set for one encapsulated
// document instance. Every field is in its final DICOM form.
type ObjectMetadata struct {
	PatientName            string // PN, Surname^Given
	PatientID              string
	PatientBirthDate       string // DA, YYYYMMDD or empty
	PatientSex             string
	StudyDescription       string
	SeriesDescription      string
	ReferringPhysicianName string
	AccessionNumber        string
	DocumentTitle          string
	StudyDate              string // DA
	StudyTime              string // TM
	SeriesNumber           int
	InstanceNumber         int
	StudyInstanceUID       string
	SeriesInstanceUID      string
	SOPInstanceUID         string
}

// Defaults supplies site-level fallbacks applied when the per-document
// input leaves a field empty.
type Defaults struct {
	StudyDescription       string
	SeriesDescription      string
	ReferringPhysicianName string
	AccessionNumber        string
}

// Input is the caller-supplied metadata for one document. PatientName may
// be in human form ("Surname Given"); it is normalized during resolution.
type Input struct {
	PatientName      string
	PatientID        string
	PatientBirthDate string // human or DICOM form, parsed tolerantly
	PatientSex       string
	DocumentTitle    string

	StudyDescription       string
	SeriesDescription      string
	ReferringPhysicianName string
	AccessionNumber        string
}

const (
	defaultStudyDescription  = "Documenti"
	defaultSeriesDescription = "PDF Upload"
)

// Resolver merges per-document input with defaults and assigns UIDs. One
// resolver covers one batch: the study UID (and, unless series-per-object
// is set, the series UID) is fixed at construction so every object it
// resolves lands in the same study.
type Resolver struct {
	defaults        Defaults
	uids            uid.Generator
	now             func() time.Time
	seriesPerObject bool

	studyUID  string
	seriesUID string
	instances int
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the time source used for date and time attributes.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithSeriesPerObject makes each resolved object start its own series
// instead of sharing one series across the batch.
func WithSeriesPerObject() ResolverOption {
	return func(r *Resolver) { r.seriesPerObject = true }
}

// NewResolver creates a Resolver for one batch.
func NewResolver(defaults Defaults, gen uid.Generator, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		defaults: defaults,
		uids:     gen,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.uids == nil {
		r.uids = uid.RandomGenerator{}
	}
	r.studyUID = r.uids.New()
	r.seriesUID = r.uids.New()
	return r
}

// Resolve produces the attribute set for the next object in the batch. A
// fresh SOP instance UID is assigned on every call.
func (r *Resolver) Resolve(in Input) (*ObjectMetadata, error) {
	name := strings.TrimSpace(in.PatientName)
	if name == "" {
		return nil, fmt.Errorf("%w: patient name is required", dcmerr.ErrInvalidMetadata)
	}
	pid := strings.TrimSpace(in.PatientID)
	if pid == "" {
		return nil, fmt.Errorf("%w: patient ID is required", dcmerr.ErrInvalidMetadata)
	}

	r.instances++
	seriesUID := r.seriesUID
	seriesNumber := 1
	instanceNumber := r.instances
	if r.seriesPerObject {
		if r.instances > 1 {
			seriesUID = r.uids.New()
			r.seriesUID = seriesUID
		}
		seriesNumber = r.instances
		instanceNumber = 1
	}

	now := r.now()
	meta := &ObjectMetadata{
		PatientName:      FormatPersonName(name),
		PatientID:        pid,
		PatientBirthDate: ParseBirthDate(in.PatientBirthDate),
		PatientSex:       strings.TrimSpace(in.PatientSex),
		DocumentTitle:    strings.TrimSpace(in.DocumentTitle),

		StudyDescription:       firstNonEmpty(in.StudyDescription, r.defaults.StudyDescription, defaultStudyDescription),
		SeriesDescription:      firstNonEmpty(in.SeriesDescription, r.defaults.SeriesDescription, defaultSeriesDescription),
		ReferringPhysicianName: firstNonEmpty(in.ReferringPhysicianName, r.defaults.ReferringPhysicianName),
		AccessionNumber:        firstNonEmpty(in.AccessionNumber, r.defaults.AccessionNumber),

		StudyDate: now.Format("20060102"),
		StudyTime: now.Format("150405"),

		SeriesNumber:      seriesNumber,
		InstanceNumber:    instanceNumber,
		StudyInstanceUID:  r.studyUID,
		SeriesInstanceUID: seriesUID,
		SOPInstanceUID:    r.uids.New(),
	}
	return meta, nil
}

// StudyInstanceUID returns the study UID shared by the batch.
func (r *Resolver) StudyInstanceUID() string {
	return r.studyUID
}

// FormatPersonName converts a human name to DICOM PN form. "Rossi Mario"
// becomes "Rossi^Mario"; a value already containing a caret passes through.
func FormatPersonName(human string) string {
	s := strings.TrimSpace(human)
	if s == "" {
		return "Anon^Anon"
	}
	if strings.Contains(s, "^") {
		return s
	}
	parts := strings.Fields(s)
	if len(parts) == 1 {
		return parts[0] + "^"
	}
	return parts[0] + "^" + strings.Join(parts[1:], " ")
}

// ParseBirthDate converts a human date to the DICOM DA form YYYYMMDD.
// Accepts YYYYMMDD, DD/MM/YYYY and YYYY/MM/DD with ".", "-" or "/" as
// separators. Unparseable input yields the empty string, which omits the
// attribute.
func ParseBirthDate(human string) string {
	s := strings.TrimSpace(human)
	if s == "" {
		return ""
	}
	s = strings.NewReplacer(".", "/", "-", "/", " ", "").Replace(s)

	if len(s) == 8 && isDigits(s) {
		return s
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return ""
	}

	var y, m, d string
	if len(parts[0]) == 4 && isDigits(parts[0]) {
		y, m, d = parts[0], parts[1], parts[2]
	} else {
		d, m, y = parts[0], parts[1], parts[2]
	}

	var yi, mi, di int
	if _, err := fmt.Sscanf(y+" "+m+" "+d, "%d %d %d", &yi, &mi, &di); err != nil {
		return ""
	}
	if mi < 1 || mi > 12 || di < 1 || di > 31 || yi < 1800 || yi > 2200 {
		return ""
	}
	return fmt.Sprintf("%04d%02d%02d", yi, mi, di)
}

// GeneratePatientID returns a timestamped identifier with the site prefix,
// for documents with no hospital-assigned ID.
func GeneratePatientID(now time.Time) string {
	return "ICCPV" + now.Format("20060102150405")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
