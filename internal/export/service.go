package export

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"time"
)

// Service generates export artifacts and optionally archives them.
type Service struct {
	archive *Archiver
	now     func() time.Time
}

// NewService creates an export service. archive may be nil when no object
// store is configured.
func NewService(archive *Archiver) *Service {
	return &Service{archive: archive, now: time.Now}
}

// Export generates an artifact in the requested format. Markdown export
// returns the raw document bytes unchanged; HTML and PDF are derived.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	result, err := s.render(req)
	if err != nil {
		return nil, err
	}

	if s.archive != nil {
		// Archival failure never fails the export itself.
		artifact := *result
		go func() {
			archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.archive.Put(archiveCtx, req.CycleID, req.Version, &artifact); err != nil {
				log.Printf("export: archive %s v%d: %v", req.CycleID, req.Version, err)
			}
		}()
	}
	return result, nil
}

func (s *Service) render(req Request) (*Result, error) {
	switch req.Format {
	case FormatMarkdown:
		return &Result{
			Data:     []byte(req.Content),
			Filename: sanitizeFilename(req.Title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	case FormatHTML:
		page, err := s.renderHTML(req)
		if err != nil {
			return nil, err
		}
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(req.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		page, err := s.renderHTML(req)
		if err != nil {
			return nil, err
		}
		return renderPDF(page, req.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) renderHTML(req Request) (string, error) {
	body := markdownToHTML(req.Content)
	page, err := RenderDocumentHTML(TemplateData{
		Title:       req.Title,
		ContentHTML: template.HTML(body),
		Version:     req.Version,
		GeneratedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("render export template: %w", err)
	}
	return page, nil
}

// sanitizeFilename creates a safe filename from a title.
func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "document"
	}
	return result
}
