package out

import (
	"context"
	"fmt"
	"os"

	"github.com/astrogo/fitsio"

	"gocpl/internal/modules/recipe/domain"
)

// FITSHeaderReader reads the primary header of a product file. Cards are
// returned in file order with values rendered as text and never interpreted.
type FITSHeaderReader struct{}

func NewFITSHeaderReader() FITSHeaderReader {
	return FITSHeaderReader{}
}

func (FITSHeaderReader) ReadPrimary(ctx context.Context, path string) (domain.Header, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open product: %w", err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("decode fits %s: %w", path, err)
	}
	defer f.Close()

	if len(f.HDUs()) == 0 {
		return nil, fmt.Errorf("fits %s: no primary header", path)
	}
	hdr := f.HDU(0).Header()
	keys := hdr.Keys()
	out := make(domain.Header, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		card := hdr.Get(key)
		if card == nil {
			continue
		}
		out = append(out, domain.Keyword{Name: card.Name, Value: cardValue(card.Value), Comment: card.Comment})
	}
	return out, nil
}

func cardValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "T"
		}
		return "F"
	default:
		return fmt.Sprint(v)
	}
}
