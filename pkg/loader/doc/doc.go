package doc

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/graphsync/pkg/loader"
)

const docXMLMax = 50 << 20

// DocLoader extracts the text of Word documents fetched by an inner loader.
// Sources without a .docx extension pass through unchanged, so it can wrap
// any loader.
type DocLoader struct {
	loader loader.Loader
	cache  *loader.Cache
}

func NewDocLoader(inner loader.Loader) *DocLoader {
	return &DocLoader{loader: inner, cache: loader.NewCache()}
}

func (l *DocLoader) Load(ctx context.Context, src loader.Source) ([]byte, error) {
	if !strings.EqualFold(filepath.Ext(src.Path), ".docx") {
		return l.loader.Load(ctx, src)
	}
	return l.cache.Get(loader.CacheKey(src), func() ([]byte, error) {
		content, err := l.loader.Load(ctx, src)
		if err != nil {
			return nil, err
		}
		return parseDocx(content)
	})
}
