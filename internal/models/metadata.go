package models

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Reserved metadata keys owned by the extraction result.
const (
	KeyExtractedText        = "extracted_text"
	KeyExtractionMethod     = "extraction_method"
	KeyExtractionConfidence = "extraction_confidence"
	KeyWordCount            = "word_count"
	KeyPages                = "pages"
)

var reservedKeys = map[string]struct{}{
	KeyExtractedText:        {},
	KeyExtractionMethod:     {},
	KeyExtractionConfidence: {},
	KeyWordCount:            {},
	KeyPages:                {},
}

// IsReservedMetadataKey reports whether key belongs to a typed result shape.
func IsReservedMetadataKey(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// ExtractionMetadata is the result of the text extraction phase. Nil fields
// are absent, which lets a patch touch one key without clearing the others.
type ExtractionMetadata struct {
	ExtractedText        *string
	ExtractionMethod     *string
	ExtractionConfidence *float64
	WordCount            *int
	Pages                *int
}

// merge overlays the fields set in patch.
func (e ExtractionMetadata) merge(patch *ExtractionMetadata) ExtractionMetadata {
	if patch.ExtractedText != nil {
		e.ExtractedText = clonePtr(patch.ExtractedText)
	}
	if patch.ExtractionMethod != nil {
		e.ExtractionMethod = clonePtr(patch.ExtractionMethod)
	}
	if patch.ExtractionConfidence != nil {
		e.ExtractionConfidence = clonePtr(patch.ExtractionConfidence)
	}
	if patch.WordCount != nil {
		e.WordCount = clonePtr(patch.WordCount)
	}
	if patch.Pages != nil {
		e.Pages = clonePtr(patch.Pages)
	}
	return e
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Metadata is a document's open metadata map with its known result shapes
// typed out. It serializes as a single flat JSON object.
type Metadata struct {
	Extraction *ExtractionMetadata
	Extra      map[string]any
}

// TextLength is the character count of the extracted text, if any.
func (m Metadata) TextLength() (int, bool) {
	if m.Extraction == nil || m.Extraction.ExtractedText == nil {
		return 0, false
	}
	return utf8.RuneCountInString(*m.Extraction.ExtractedText), true
}

// HasExtractedText reports whether metadata carries extracted text.
func (m Metadata) HasExtractedText() bool {
	_, ok := m.TextLength()
	return ok
}

// WithoutExtractedText drops the text but keeps the rest of the extraction
// record.
func (m Metadata) WithoutExtractedText() Metadata {
	out := m.Clone()
	if out.Extraction != nil {
		out.Extraction.ExtractedText = nil
	}
	return out
}

// Clone returns a copy that shares no mutable state with m.
func (m Metadata) Clone() Metadata {
	var out Metadata
	if m.Extraction != nil {
		ex := ExtractionMetadata{}.merge(m.Extraction)
		out.Extraction = &ex
	}
	if len(m.Extra) > 0 {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// MergeMetadata shallow-merges patch onto base: every key the patch sets
// wins, every key it leaves out is kept. This holds for the extraction keys
// as well as for Extra.
func MergeMetadata(base, patch Metadata) (Metadata, error) {
	for k := range patch.Extra {
		if IsReservedMetadataKey(k) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrReservedMetadataKey, k)
		}
	}

	out := base.Clone()
	if patch.Extraction != nil {
		var ex ExtractionMetadata
		if out.Extraction != nil {
			ex = *out.Extraction
		}
		ex = ex.merge(patch.Extraction)
		out.Extraction = &ex
	}
	if len(patch.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(patch.Extra))
		}
		for k, v := range patch.Extra {
			out.Extra[k] = v
		}
	}
	return out, nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		flat[k] = v
	}
	if ex := m.Extraction; ex != nil {
		if ex.ExtractedText != nil {
			flat[KeyExtractedText] = *ex.ExtractedText
		}
		if ex.ExtractionMethod != nil {
			flat[KeyExtractionMethod] = *ex.ExtractionMethod
		}
		if ex.ExtractionConfidence != nil {
			flat[KeyExtractionConfidence] = *ex.ExtractionConfidence
		}
		if ex.WordCount != nil {
			flat[KeyWordCount] = *ex.WordCount
		}
		if ex.Pages != nil {
			flat[KeyPages] = *ex.Pages
		}
	}
	return json.Marshal(flat)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*m = Metadata{}
	var ex ExtractionMetadata
	hasExtraction := false

	for k, v := range raw {
		switch k {
		case KeyExtractedText:
			if err := json.Unmarshal(v, &ex.ExtractedText); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
		case KeyExtractionMethod:
			if err := json.Unmarshal(v, &ex.ExtractionMethod); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
		case KeyExtractionConfidence:
			if err := json.Unmarshal(v, &ex.ExtractionConfidence); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
		case KeyWordCount:
			if err := json.Unmarshal(v, &ex.WordCount); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
		case KeyPages:
			if err := json.Unmarshal(v, &ex.Pages); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("metadata.%s: %w", k, err)
			}
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = val
			continue
		}
		hasExtraction = true
	}

	if hasExtraction {
		m.Extraction = &ex
	}
	return nil
}
