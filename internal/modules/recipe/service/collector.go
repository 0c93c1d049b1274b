package service

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"gocpl/internal/modules/recipe/domain"
	recipeout "gocpl/internal/modules/recipe/port/out"
)

const untaggedProduct = "UNTAGGED"

// Collector turns raw native output into an InvocationResult.
type Collector struct {
	headers recipeout.HeaderReader
	logger  hclog.Logger
}

// NewCollector builds a collector; headers may be nil to skip reading
// product headers.
func NewCollector(headers recipeout.HeaderReader, logger hclog.Logger) *Collector {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Collector{headers: headers, logger: logger}
}

// Collect resolves product paths against outputDir, checks that each product
// exists and attaches keywords and headers. A failed run still yields the result next to its ExecutionError.
func (c *Collector) Collect(ctx context.Context, recipe string, raw domain.NativeOutput, outputDir string) (*domain.InvocationResult, error) {
	result := &domain.InvocationResult{
		Recipe:   recipe,
		Status:   raw.Status,
		Log:      raw.Log,
		Keywords: domain.Header(raw.Keywords).Map(),
	}
	for _, nf := range raw.Frames {
		path := nf.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(outputDir, path)
		}
		tag := nf.Tag
		if tag == "" {
			c.logger.Warn("product without tag", "recipe", recipe, "path", path)
			tag = untaggedProduct
		}
		frame, err := domain.NewFrame(path, tag, domain.FrameGroupProduct)
		if err != nil {
			c.logger.Warn("dropping malformed product", "recipe", recipe, "path", path, "error", err)
			continue
		}
		result.Outputs.Append(frame)
		product := domain.Product{Frame: frame}
		info, err := os.Stat(path)
		switch {
		case err != nil:
			c.logger.Warn("product not found", "recipe", recipe, "path", path, "error", err)
			product.Missing = true
		case info.IsDir():
			c.logger.Warn("product is a directory", "recipe", recipe, "path", path)
			product.Missing = true
		default:
			product.Size = info.Size()
		}
		if c.headers != nil && !product.Missing {
			header, err := c.headers.ReadPrimary(ctx, path)
			if err != nil {
				c.logger.Warn("read product header", "recipe", recipe, "path", path, "error", err)
			} else {
				product.Header = header
			}
		}
		result.Products = append(result.Products, product)
	}
	if raw.Failed() {
		return result, &domain.ExecutionError{
			Recipe:    recipe,
			Status:    raw.Status,
			ErrorCode: raw.ErrorCode,
			Message:   raw.ErrorMessage,
			Location:  raw.ErrorLocation,
			Log:       raw.Log,
		}
	}
	return result, nil
}
