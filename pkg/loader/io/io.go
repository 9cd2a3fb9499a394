package io

import (
	"context"
	"os"

	"github.com/OFFIS-RIT/graphsync/pkg/loader"
)

// FileLoader reads sources from the local filesystem with caching.
type FileLoader struct {
	cache *loader.Cache
}

func NewFileLoader() *FileLoader {
	return &FileLoader{cache: loader.NewCache()}
}

func (l *FileLoader) Load(ctx context.Context, src loader.Source) ([]byte, error) {
	return l.cache.Get(loader.CacheKey(src), func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return os.ReadFile(src.Path)
	})
}
