package app_test

import (
	"github.com/aussiebroadwan/todo/internal/storage"
	"github.com/aussiebroadwan/todo/internal/storage/drivers/file"
)

func fileStore(path string) (storage.Store, error) {
	return file.NewStore(path)
}
