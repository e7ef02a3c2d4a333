package receipt

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/receipt-ledger/internal/ledger"
	"github.com/zombor/receipt-ledger/internal/scanning"
)

// Extractor reads a Record out of a receipt image
type Extractor interface {
	Extract(ctx context.Context, image []byte) (ledger.Record, error)
}

// Planner turns a question into a Query. A nil query means the question
// could not be understood.
type Planner interface {
	Plan(ctx context.Context, text string) (*ledger.Query, error)
}

// IDGenerator generates unique IDs for inbound units and archived images
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// LocationTimeSource reports the current time in a fixed location.
type LocationTimeSource struct {
	Location *time.Location
}

func (t LocationTimeSource) Now() time.Time {
	return time.Now().In(t.Location)
}

// Service routes inbound units to the extraction or query pipeline and
// turns every outcome into a Reply.
type Service struct {
	extractor      Extractor
	planner        Planner
	store          Store
	archive        Archive
	idGenerator    IDGenerator
	appendAttempts int
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithArchive keeps a copy of every image that was read successfully
func WithArchive(a Archive) ServiceOption {
	return func(s *Service) {
		s.archive = a
	}
}

// WithAppendAttempts sets how many times an append is tried before the
// record is reported as not saved. Values below one are ignored.
func WithAppendAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.appendAttempts = n
		}
	}
}

// WithIDGenerator replaces the uuid generator, mostly for tests
func WithIDGenerator(g IDGenerator) ServiceOption {
	return func(s *Service) {
		s.idGenerator = g
	}
}

// NewService creates a new Service
func NewService(extractor Extractor, planner Planner, store Store, opts ...ServiceOption) *Service {
	s := &Service{
		extractor:      extractor,
		planner:        planner,
		store:          store,
		idGenerator:    &defaultIDGenerator{},
		appendAttempts: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle routes in. An image always goes to the extraction pipeline and any
// caption is ignored; text alone is treated as a question.
func (s *Service) Handle(ctx context.Context, in Inbound) Reply {
	if len(in.Image) > 0 {
		return s.ProcessReceipt(ctx, in)
	}
	if strings.TrimSpace(in.Text) == "" {
		return Reply{Outcome: OutcomeUsage, Text: usageText}
	}
	return s.Answer(ctx, in.Text)
}

// ProcessReceipt extracts a record from the image, archives the image and
// appends the record to the store.
func (s *Service) ProcessReceipt(ctx context.Context, in Inbound) Reply {
	id := s.idGenerator.Generate()
	log := slog.With("request_id", id)

	rec, err := s.extractor.Extract(ctx, in.Image)
	if err != nil {
		log.Error("Failed to scan receipt",
			"filename", in.Filename,
			"content_type", in.ContentType,
			"file_size", len(in.Image),
			"error", err,
		)
		text := extractionFailedText
		if scanning.IsProviderError(err) {
			text += waitSuffix
		}
		return Reply{Outcome: OutcomeExtractionFailed, Text: text}
	}

	if s.archive != nil {
		name := fmt.Sprintf("%s_%s", id, archiveFilename(in.Filename, in.ContentType))
		if path, err := s.archive.Save(ctx, name, in.Image, in.ContentType); err != nil {
			log.Warn("Failed to archive receipt image", "name", name, "error", err)
		} else {
			log.Info("Archived receipt image", "path", path)
		}
	}

	if err := s.append(ctx, rec); err != nil {
		log.Error("Failed to save record",
			"attempts", s.appendAttempts,
			"receiver_name", rec.ReceiverName,
			"amount", rec.AmountText(),
			"error", err,
		)
		return Reply{Outcome: OutcomeNotSaved, Text: notSavedText(rec), Record: &rec}
	}

	log.Info("Saved receipt", "date_sent", rec.DateSent, "amount", rec.AmountText())
	return Reply{Outcome: OutcomeSaved, Text: savedText(rec), Record: &rec}
}

func (s *Service) append(ctx context.Context, rec ledger.Record) error {
	var err error
	for attempt := 1; attempt <= s.appendAttempts; attempt++ {
		if err = s.store.Append(ctx, rec); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("appending record: %w", err)
		}
		slog.Warn("Append failed", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("appending record: %w", err)
}

// Answer plans a query for text, runs it and formats the matches.
func (s *Service) Answer(ctx context.Context, text string) Reply {
	log := slog.With("request_id", s.idGenerator.Generate())

	q, err := s.planner.Plan(ctx, text)
	if err != nil {
		log.Error("Failed to plan query", "error", err)
		return Reply{Outcome: OutcomeUnavailable, Text: unavailableText}
	}
	if q == nil {
		log.Info("Could not understand request", "text", text)
		return Reply{Outcome: OutcomeNotUnderstood, Text: notUnderstoodText}
	}

	results, err := s.store.Search(ctx, *q)
	if err != nil {
		log.Error("Search failed",
			"column", q.ColumnToSearch,
			"value", q.SearchValue,
			"error", err,
		)
		return Reply{Outcome: OutcomeNoMatches, Text: noMatchesText(*q)}
	}

	results = ledger.Dedupe(results)
	if len(results) == 0 {
		return Reply{Outcome: OutcomeNoMatches, Text: noMatchesText(*q), Results: results}
	}

	log.Info("Answered query", "column", q.ColumnToSearch, "matches", len(results))
	return Reply{Outcome: OutcomeResults, Text: resultsText(results), Results: results}
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// archiveFilename cleans up a phone-generated filename. The extension
// follows the content type of the bytes being archived, which differs from
// the original name once a transport has converted a HEIC or PDF upload.
func archiveFilename(filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))
	base = strings.ReplaceAll(base, " ", "_")

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" || base == "." {
		base = "receipt"
	}
	known := extensionFor(contentType)
	switch {
	case known != ".bin" && ext != known && !(known == ".jpg" && ext == ".jpeg"):
		ext = known
	case len(ext) < 2 || unsafeChars.MatchString(strings.TrimPrefix(ext, ".")):
		ext = known
	}

	return base + ext
}

func extensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
