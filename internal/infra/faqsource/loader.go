package faqsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yanqian/faq-assistant/internal/domain/catalog"
	apperrors "github.com/yanqian/faq-assistant/pkg/errors"
)

const objectScheme = "s3://"

// Opener reads a named object.
type Opener interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Loader reads FAQ item lists from local files or object storage.
type Loader struct {
	objects Opener
}

// NewLoader constructs a Loader. objects may be nil when no bucket is configured.
func NewLoader(objects Opener) *Loader {
	return &Loader{objects: objects}
}

// Load resolves ref to a JSON array of {question, answer} objects. Refs of
// the form s3://key are read from object storage; anything else is a path.
func (l *Loader) Load(ctx context.Context, ref string) ([]catalog.Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "input file is required", nil)
	}
	var (
		rc  io.ReadCloser
		err error
	)
	if key, ok := strings.CutPrefix(ref, objectScheme); ok {
		if l.objects == nil {
			return nil, apperrors.Wrap(apperrors.CodeConfiguration, "object storage is not configured", nil)
		}
		rc, err = l.objects.Open(ctx, key)
	} else {
		rc, err = os.Open(ref)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeNotFound, fmt.Sprintf("cannot open %s", ref), err)
	}
	defer rc.Close()
	return Decode(rc)
}

// Decode parses a JSON array of items.
func Decode(r io.Reader) ([]catalog.Item, error) {
	var items []catalog.Item
	dec := json.NewDecoder(r)
	if err := dec.Decode(&items); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid FAQ JSON", err)
	}
	return items, nil
}
