package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/MeKo-Tech/qrharvest/internal/utils"
)

// PDFSource yields the images embedded in a PDF document as frames, in page
// order. Extraction happens when the source is opened; images are decoded
// lazily.
type PDFSource struct {
	path    string
	tempDir string
	images  []pdfImage
	next    int
}

type pdfImage struct {
	page  int
	index int
	path  string
}

// NewPDFSource extracts the images of path, limited to pageRange when it is
// not empty ("1-3,5").
func NewPDFSource(path, pageRange string) (*PDFSource, error) {
	pages, err := ParsePageRange(pageRange)
	if err != nil {
		return nil, fmt.Errorf("invalid page range %q: %w", pageRange, err)
	}
	tempDir, err := os.MkdirTemp("", "qrharvest-pdf-*")
	if err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}
	if err := api.ExtractImagesFile(path, tempDir, selected, nil); err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, fmt.Errorf("extract images from %s: %w", path, err)
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	images, err := collectExtracted(tempDir, base)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, err
	}
	return &PDFSource{path: path, tempDir: tempDir, images: images}, nil
}

// Len returns the number of embedded images found.
func (s *PDFSource) Len() int { return len(s.images) }

// Next implements Source.
func (s *PDFSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.images) {
		return Frame{}, ErrEndOfStream
	}
	im := s.images[s.next]
	s.next++
	name := fmt.Sprintf("%s page %d image %d", s.path, im.page, im.index)
	img, _, err := utils.LoadImage(im.path)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %w", ErrEmptyFrame, name, err)
	}
	return Frame{Image: img, Name: name, Seq: s.next, At: time.Now()}, nil
}

// Close removes the extracted files.
func (s *PDFSource) Close() error { return os.RemoveAll(s.tempDir) }

// collectExtracted lists decodable-looking files written by the extractor,
// ordered by page and then by name.
func collectExtracted(dir, base string) ([]pdfImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read extracted images: %w", err)
	}
	type named struct {
		page int
		name string
	}
	var found []named
	for _, e := range entries {
		if e.IsDir() || !utils.IsSupportedImage(e.Name()) {
			continue
		}
		page, err := pageFromFilename(e.Name(), base)
		if err != nil {
			continue
		}
		found = append(found, named{page: page, name: e.Name()})
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].page != found[j].page {
			return found[i].page < found[j].page
		}
		return found[i].name < found[j].name
	})

	out := make([]pdfImage, 0, len(found))
	perPage := map[int]int{}
	for _, f := range found {
		perPage[f.page]++
		out = append(out, pdfImage{page: f.page, index: perPage[f.page], path: filepath.Join(dir, f.name)})
	}
	return out, nil
}

// pageFromFilename extracts the page number from an extracted image name,
// which is "<base>_<page>_<id>.<ext>" or "page_<page>_<id>.<ext>".
func pageFromFilename(name, base string) (int, error) {
	var rest string
	switch {
	case base != "" && strings.HasPrefix(name, base+"_"):
		rest = strings.TrimPrefix(name, base+"_")
	case strings.HasPrefix(name, "page_"):
		rest = strings.TrimPrefix(name, "page_")
	default:
		return 0, errors.New("not a page image")
	}
	num, _, _ := strings.Cut(rest, "_")
	page, err := strconv.Atoi(num)
	if err != nil || page < 1 {
		return 0, fmt.Errorf("invalid page number in %q", name)
	}
	return page, nil
}

// ParsePageRange parses "1-5" or "1,3,5" style page selections. An empty
// string selects all pages and returns nil.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}
	var pages []int
	for _, part := range strings.Split(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		pages = append(pages, tokenPages...)
	}
	return pages, nil
}

func parseRangeToken(part string) ([]int, error) {
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		if strings.Contains(hi, "-") {
			return nil, fmt.Errorf("invalid range format: %s", part)
		}
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid start page: %s", lo)
		}
		end, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, fmt.Errorf("invalid end page: %s", hi)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := strconv.Atoi(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}
