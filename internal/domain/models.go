package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Document represents the source PDF file being processed
type Document struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	PageCount int    `json:"page_count"`
}

// EncodedImage is one rendered page, compressed and base64 encoded
type EncodedImage struct {
	PageNumber int    `json:"page_number"`
	MIMEType   string `json:"mime_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Data       string `json:"data"` // base64 of the compressed image bytes
}

// DataURI returns the image inlined as a data URI.
func (img EncodedImage) DataURI() string {
	return "data:" + img.MIMEType + ";base64," + img.Data
}

// PageImages maps 1-based page numbers to encoded images in page order.
// Pages must be added consecutively starting at 1.
type PageImages struct {
	images []EncodedImage
}

// NewPageImages creates an empty mapping with room for n pages.
func NewPageImages(n int) *PageImages {
	if n < 0 {
		n = 0
	}
	return &PageImages{images: make([]EncodedImage, 0, n)}
}

// Add appends the next page. The page number must be Len()+1.
func (p *PageImages) Add(img EncodedImage) error {
	want := len(p.images) + 1
	if img.PageNumber != want {
		return ValidationError(fmt.Sprintf("expected page %d, got page %d", want, img.PageNumber), nil)
	}
	p.images = append(p.images, img)
	return nil
}

// Get returns the image for a 1-based page number.
func (p *PageImages) Get(page int) (EncodedImage, bool) {
	if p == nil || page < 1 || page > len(p.images) {
		return EncodedImage{}, false
	}
	return p.images[page-1], true
}

// Len returns the number of pages.
func (p *PageImages) Len() int {
	if p == nil {
		return 0
	}
	return len(p.images)
}

// Pages returns the page numbers in ascending order.
func (p *PageImages) Pages() []int {
	pages := make([]int, p.Len())
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// Ordered returns a copy of the images in ascending page order.
func (p *PageImages) Ordered() []EncodedImage {
	if p == nil {
		return nil
	}
	out := make([]EncodedImage, len(p.images))
	copy(out, p.images)
	return out
}

// MarshalJSON encodes the mapping as an object keyed by page number.
func (p *PageImages) MarshalJSON() ([]byte, error) {
	m := make(map[int]EncodedImage, p.Len())
	for _, img := range p.Ordered() {
		m[img.PageNumber] = img
	}
	return json.Marshal(m)
}

// UnmarshalJSON restores a mapping, rejecting gaps and duplicates.
func (p *PageImages) UnmarshalJSON(data []byte) error {
	var m map[int]EncodedImage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	restored := NewPageImages(len(keys))
	for _, k := range keys {
		img := m[k]
		img.PageNumber = k
		if err := restored.Add(img); err != nil {
			return err
		}
	}
	*p = *restored
	return nil
}

// State is a stage of the upload and query interaction
type State string

const (
	StateIdle             State = "idle"
	StateDocumentUploaded State = "document_uploaded"
	StateImagesReady      State = "images_ready"
	StateQuerying         State = "querying"
	StateResultDisplayed  State = "result_displayed"
)

// maxTransitions bounds the recorded state history per session.
const maxTransitions = 64

// Session is the per-user interaction state
type Session struct {
	ID          string      `json:"id"`
	State       State       `json:"state"`
	Document    *Document   `json:"document,omitempty"`
	Images      *PageImages `json:"images,omitempty"`
	LastQuery   string      `json:"last_query,omitempty"`
	LastAnswer  string      `json:"last_answer,omitempty"`
	LastError   string      `json:"last_error,omitempty"`
	Transitions []State     `json:"transitions"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// NewSession creates an idle session.
func NewSession(id string) *Session {
	return &Session{
		ID:          id,
		State:       StateIdle,
		Transitions: []State{StateIdle},
		UpdatedAt:   time.Now(),
	}
}

// Enter moves the session to state and records the transition.
func (s *Session) Enter(state State) {
	s.State = state
	s.Transitions = append(s.Transitions, state)
	if len(s.Transitions) > maxTransitions {
		s.Transitions = s.Transitions[len(s.Transitions)-maxTransitions:]
	}
	s.UpdatedAt = time.Now()
}

// PageCount returns the number of rendered pages held by the session.
func (s *Session) PageCount() int {
	return s.Images.Len()
}

// ClearDocument drops the document and its images.
func (s *Session) ClearDocument() {
	s.Document = nil
	s.Images = nil
	s.LastQuery = ""
	s.LastAnswer = ""
}
