package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/triage"
)

const fontName = "DejaVu"

const (
	lineHeight = 16
	// pageBottom is the lowest Y a line may start at on an A4 page.
	pageBottom = 780
	pageTop    = 40
)

// DefaultFontPaths are tried after the configured font path.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

type TelegramClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendDocument(ctx context.Context, chatID int64, fileData []byte, fileName, caption string) error
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPaths    []string
	logger       zerolog.Logger
}

// NewService builds the report service. tg may be nil, in which case reports
// can still be rendered but are never delivered.
func NewService(tg TelegramClient, doctorChatID int64, fontPath string, logger zerolog.Logger) *Service {
	paths := make([]string, 0, len(DefaultFontPaths)+1)
	if fontPath != "" {
		paths = append(paths, fontPath)
	}
	paths = append(paths, DefaultFontPaths...)
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPaths:    paths,
		logger:       logger,
	}
}

// Enabled reports whether reports are delivered to a clinician chat.
func (s *Service) Enabled() bool {
	return s.tgClient != nil && s.doctorChatID != 0
}

func (s *Service) loadFont(pdf *gopdf.GoPdf) error {
	var fontErr error
	for _, path := range s.fontPaths {
		if err := pdf.AddTTFFont(fontName, path); err != nil {
			fontErr = err
			continue
		}
		s.logger.Debug().Str("path", path).Msg("loaded report font")
		return nil
	}
	if fontErr == nil {
		fontErr = errors.New("no font paths configured")
	}
	return fmt.Errorf("failed to load font for PDF, install ttf-dejavu or set REPORT_FONT_PATH: %w", fontErr)
}

// Render lays out an assessment as an A4 PDF.
func (s *Service) Render(a interview.Assessment) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := s.loadFont(&pdf); err != nil {
		return nil, err
	}

	w := &writer{pdf: &pdf}
	w.heading(20, "Symptom assessment")
	w.gap(10)

	w.font(12)
	w.line(fmt.Sprintf("Date: %s", a.CreatedAt.Format("02.01.2006 15:04")))
	w.line(fmt.Sprintf("Patient: %s", patientLabel(a.Profile)))
	w.line(fmt.Sprintf("Age: %d, sex: %s", a.Profile.Age, a.Profile.Sex))
	w.line(fmt.Sprintf("Assessment ID: %s", a.ID))
	w.gap(10)

	w.heading(14, "Triage")
	w.font(11)
	if a.Triage == nil {
		w.line("Triage was not resolved for this assessment.")
	} else {
		d := triage.Presentation(a.Triage.Level)
		w.line(fmt.Sprintf("%s (%s)", d.Label, a.Triage.Level))
		if a.Triage.Description != "" {
			w.wrapped(a.Triage.Description)
		}
	}
	w.gap(10)

	w.heading(14, "Recommendations")
	w.font(11)
	if len(a.Recommendations) == 0 {
		w.line("- None.")
	}
	for _, r := range a.Recommendations {
		w.wrapped("- " + r)
	}
	w.gap(10)

	w.heading(14, "Possible conditions")
	w.font(11)
	if len(a.Conditions) == 0 {
		w.line("- No conditions reported.")
	}
	for _, c := range a.Conditions {
		w.wrapped(fmt.Sprintf("- %s: %.0f%%", conditionLabel(c), c.Probability*100))
	}
	w.gap(10)

	w.heading(14, "Reported evidence")
	w.font(11)
	for _, e := range a.Evidence {
		w.line(fmt.Sprintf("- %s: %s (%s)", e.SymptomID, e.Choice, e.Source))
	}

	w.gap(10)
	w.font(9)
	w.line("This report is informational and does not replace a medical examination.")

	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// SendDoctorReport renders the assessment and sends it to the clinician chat.
// Emergency triage levels get a separate text alert first.
func (s *Service) SendDoctorReport(ctx context.Context, a interview.Assessment) error {
	if !s.Enabled() {
		s.logger.Debug().Str("assessment_id", a.ID.String()).Msg("report delivery not configured, skipping")
		return nil
	}

	if a.Triage != nil && triage.IsEmergency(a.Triage.Level) {
		if err := s.tgClient.SendMessage(ctx, s.doctorChatID, Summary(a)); err != nil {
			return err
		}
	}

	data, err := s.Render(a)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("report_%s.pdf", a.ID.String())
	s.logger.Info().Int64("chat_id", s.doctorChatID).Str("file", fileName).Msg("sending PDF report")
	return s.tgClient.SendDocument(ctx, s.doctorChatID, data, fileName, Summary(a))
}

// Summary is the short plain-text description sent alongside a report.
func Summary(a interview.Assessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s, %d, %s\n", patientLabel(a.Profile), a.Profile.Age, a.Profile.Sex)
	if a.Triage != nil {
		fmt.Fprintf(&b, "Triage: %s\n", triage.Presentation(a.Triage.Level).Label)
	} else {
		b.WriteString("Triage: not resolved\n")
	}
	if len(a.Conditions) > 0 {
		top := a.Conditions[0]
		fmt.Fprintf(&b, "Top condition: %s (%.0f%%)", conditionLabel(top), top.Probability*100)
	} else {
		b.WriteString("No conditions reported")
	}
	return b.String()
}

func patientLabel(p interview.Profile) string {
	if strings.TrimSpace(p.Name) == "" {
		return "Anonymous"
	}
	return p.Name
}

func conditionLabel(c interview.Condition) string {
	if c.CommonName != "" && c.CommonName != c.Name {
		return fmt.Sprintf("%s (%s)", c.Name, c.CommonName)
	}
	return c.Name
}

// writer keeps the first layout error so Render can check once. Lines that
// would run past the bottom margin start a new page in the current font.
type writer struct {
	pdf  *gopdf.GoPdf
	size float64
	err  error
}

func (w *writer) font(size float64) {
	if w.err != nil {
		return
	}
	w.size = size
	w.err = w.pdf.SetFont(fontName, "", size)
}

func (w *writer) breakPage() {
	w.pdf.AddPage()
	w.pdf.SetY(pageTop)
	if w.size > 0 {
		w.font(w.size)
	}
}

func (w *writer) heading(size float64, text string) {
	w.font(size)
	w.line(text)
}

func (w *writer) line(text string) {
	if w.err != nil {
		return
	}
	if w.pdf.GetY() > pageBottom {
		w.breakPage()
		if w.err != nil {
			return
		}
	}
	if err := w.pdf.Cell(nil, text); err != nil {
		w.err = err
		return
	}
	w.pdf.Br(lineHeight)
}

func (w *writer) wrapped(text string) {
	if w.err != nil {
		return
	}
	lines, err := w.pdf.SplitText(text, 500)
	if err != nil {
		w.err = err
		return
	}
	for _, l := range lines {
		w.line(l)
	}
}

func (w *writer) gap(h float64) {
	if w.err == nil {
		w.pdf.Br(h)
	}
}
