package crawl

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

type LinkKind int

const (
	LinkInternal LinkKind = iota
	LinkExternal
)

func (k LinkKind) String() string {
	switch k {
	case LinkInternal:
		return "internal"
	case LinkExternal:
		return "external"
	default:
		return "unknown"
	}
}

// DefaultNonDocumentExtensions lists path extensions that cannot hold
// keyword text or further links.
var DefaultNonDocumentExtensions = []string{
	// images
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp", ".tif", ".tiff", ".bmp", ".ico", ".avif",
	// audio
	".mp3", ".ogg", ".wav", ".flac", ".aac", ".m4a",
	// video
	".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv",
	// styles and scripts
	".css", ".js", ".mjs",
	// fonts
	".woff", ".woff2", ".ttf", ".otf", ".eot",
	// binary documents and archives
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	".zip", ".rar", ".tar", ".gz", ".7z", ".exe", ".dmg", ".iso",
}

// Classifier partitions discovered URLs relative to one host and filters
// out non-document targets.
type Classifier struct {
	host     string
	denylist map[string]struct{}
}

// NewClassifier builds a classifier for hostURL. A nil extensions slice
// selects DefaultNonDocumentExtensions; an empty non-nil slice disables
// the filter.
func NewClassifier(hostURL string, extensions []string) (*Classifier, error) {
	u, err := url.Parse(hostURL)
	if err != nil {
		return nil, fmt.Errorf("parse host url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host url %q has no host", hostURL)
	}
	if extensions == nil {
		extensions = DefaultNonDocumentExtensions
	}

	denylist := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		denylist[ext] = struct{}{}
	}

	return &Classifier{
		host:     strings.ToLower(u.Host),
		denylist: denylist,
	}, nil
}

// Classify reports whether rawURL lives on the classifier's host.
// Unparsable URLs are treated as external.
func (c *Classifier) Classify(rawURL string) LinkKind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return LinkExternal
	}
	if strings.ToLower(u.Host) == c.host {
		return LinkInternal
	}
	return LinkExternal
}

func (c *Classifier) IsCrawlable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if ext == "" {
		return true
	}
	_, denied := c.denylist[ext]
	return !denied
}
