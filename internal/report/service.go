package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/signintech/gopdf"
	"go.uber.org/zap"

	"symptom-tracker/internal/illness"
)

// fontPaths are the usual DejaVuSans locations on Debian and Alpine
// based images.
var fontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

// Service renders illness episodes to PDF documents.
type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

// Render produces a printable report of the episode: its dates, the
// recorded symptoms and the top conditions of the latest diagnosis.
func (s *Service) Render(e *illness.Episode) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	fontLoaded := false
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont("DejaVu", path); err == nil {
			fontLoaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !fontLoaded {
		return nil, fmt.Errorf("failed to load report font: %w", fontErr)
	}

	if err := pdf.SetFont("DejaVu", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Illness Report")
	pdf.Br(30)

	if err := pdf.SetFont("DejaVu", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Generated: %s", time.Now().UTC().Format("2006-01-02 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Title: %s", e.Title))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Started: %s", e.CreatedOn.UTC().Format(illness.TimeFormat)))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Last updated: %s", e.UpdatedOn.UTC().Format(illness.TimeFormat)))
	pdf.Br(25)

	if err := pdf.SetFont("DejaVu", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Recorded symptoms:")
	pdf.Br(15)

	if err := pdf.SetFont("DejaVu", "", 11); err != nil {
		return nil, err
	}
	if len(e.Symptoms) == 0 {
		pdf.Cell(nil, "- No symptoms recorded.")
		pdf.Br(15)
	}
	for i := range e.Symptoms {
		sym := &e.Symptoms[i]
		line := fmt.Sprintf("- %s (recorded %s)", sym.Title, sym.CreatedOn.UTC().Format("2006-01-02"))
		writeWrapped(&pdf, line)
	}
	pdf.Br(15)

	if len(e.Diagnoses) > 0 && len(e.Diagnoses[len(e.Diagnoses)-1].Conditions) > 0 {
		latest := e.Diagnoses[len(e.Diagnoses)-1]
		if err := pdf.SetFont("DejaVu", "", 14); err != nil {
			return nil, err
		}
		pdf.Cell(nil, "Latest analysis:")
		pdf.Br(15)
		if err := pdf.SetFont("DejaVu", "", 11); err != nil {
			return nil, err
		}
		for _, c := range latest.Conditions {
			writeWrapped(&pdf, fmt.Sprintf("- %s (%.0f%%), severity: %s", c.CommonName, c.Probability*100, c.Severity))
			if c.Hint != "" {
				writeWrapped(&pdf, "  "+c.Hint)
			}
			pdf.Br(5)
		}
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}

	s.logger.Info("rendered episode report",
		zap.String("episode_id", e.ID.String()),
		zap.Int("bytes", buf.Len()),
	)
	return buf.Bytes(), nil
}

func writeWrapped(pdf *gopdf.GoPdf, text string) {
	lines, _ := pdf.SplitText(text, 500)
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
}
