package soundlab

import "errors"

var (
	// ErrAssetExists is returned when inserting an asset whose name is already stored.
	ErrAssetExists = errors.New("asset already exists")

	// ErrAssetNotFound is returned when no asset has the requested ID.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInvalidCapacity is returned when a cache is configured with a non-positive capacity.
	ErrInvalidCapacity = errors.New("cache capacity must be positive")

	// ErrNotDirectory is returned when a directory import is given a path that is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)
